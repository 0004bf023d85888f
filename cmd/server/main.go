package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hamdelapp/hamdel/internal/api"
	dbstore "github.com/hamdelapp/hamdel/internal/db"
	"github.com/hamdelapp/hamdel/internal/logger"
	"github.com/hamdelapp/hamdel/internal/middleware"
	"github.com/hamdelapp/hamdel/internal/utils"
)

// zapTelemetry forwards service events to the structured log.
type zapTelemetry struct {
	log *zap.Logger
}

func (t zapTelemetry) Emit(event string, fields map[string]any) {
	t.log.Info(event, zap.Any("fields", fields))
}

func main() {
	addr := utils.SafeEnv("HAMDEL_ADDR", ":8080")
	dbPath := utils.SafeEnv("HAMDEL_DB", "data/hamdel.db")
	ttlMinutes := utils.SafeEnvInt("HAMDEL_INVITE_TTL_MINUTES", 4320)
	commit := os.Getenv("HAMDEL_COMMIT")
	buildTime := os.Getenv("HAMDEL_BUILD_TIME")

	log := logger.Init(utils.SafeEnv("HAMDEL_LOG_FILE", "logs/hamdel.log"), utils.SafeEnv("HAMDEL_LOG_LEVEL", "info"))
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatal("create db dir", zap.Error(err))
	}
	// _txlock=immediate makes write transactions take the write lock up
	// front, which the conditional token operations rely on.
	conn, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate")
	if err != nil {
		log.Fatal("open sqlite", zap.Error(err))
	}
	defer func() { _ = conn.Close() }()
	if err := dbstore.RunMigrations(conn); err != nil {
		log.Fatal("run migrations", zap.Error(err))
	}
	store, err := dbstore.NewStore(conn)
	if err != nil {
		log.Fatal("init store", zap.Error(err))
	}

	mux := http.NewServeMux()
	api.NewRouter(store, time.Duration(ttlMinutes)*time.Minute, zapTelemetry{log: log}).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"name":   "Hamdel API",
			"locale": locale,
			"msg":    utils.T(locale, "health.ok"),
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.Handle("/metrics", middleware.MetricsHandler())

	var handler http.Handler = mux
	handler = middleware.WithIdentity(handler)
	handler = middleware.LocaleMiddleware(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.SecureHeaders(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Metrics(handler)
	handler = middleware.RequestLogger(log)(handler)

	log.Info("hamdel server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
