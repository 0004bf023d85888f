package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hamdelapp/hamdel/internal/middleware"
	"github.com/hamdelapp/hamdel/internal/services"
)

// defaultQuizID is used when a client does not name a quiz; there is a
// single questionnaire in production today.
const defaultQuizID = "hamdel-v1"

type Router struct {
	attempts  *services.AttemptService
	invites   *services.InviteService
	resolver  *services.ResolveService
	inviteTTL time.Duration
}

// NewRouter wires the services over the given store. A nil store gets an
// in-memory one, which is what the tests and local development use.
func NewRouter(store Store, inviteTTL time.Duration, telemetry services.Telemetry) *Router {
	if store == nil {
		store = newMemoryStore()
	}
	content := services.NewContentCache(services.StaticContentProvider{})
	invites := services.NewInviteService(newInviteStoreAdapter(store), telemetry)
	return &Router{
		attempts:  services.NewAttemptService(newAttemptStoreAdapter(store), content, telemetry),
		invites:   invites,
		resolver:  services.NewResolveService(invites, newResolveStoreAdapter(store), content),
		inviteTTL: inviteTTL,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/attempts", rt.handleAttempts)       // POST
	mux.HandleFunc("/api/attempts/", rt.handleAttemptScoped) // GET {id}, POST {id}/answers, POST {id}/invite
	mux.HandleFunc("/api/invites/", rt.handleInviteScoped)   // GET {token}, POST {token}/complete, GET {token}/share-text
}

// POST /api/attempts — open a new questionnaire run.
func (rt *Router) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		QuizID string            `json:"quiz_id"`
		Intake map[string]string `json:"intake"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, services.NewInvalidError("invalid request body"))
			return
		}
	}
	if req.QuizID == "" {
		req.QuizID = defaultQuizID
	}
	a, err := rt.attempts.CreateAttempt(req.QuizID, middleware.ParticipantIDFromContext(r.Context()), req.Intake)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIAttempt(a))
}

// GET  /api/attempts/{id}
// POST /api/attempts/{id}/answers
// POST /api/attempts/{id}/invite[?fresh=1]
func (rt *Router) handleAttemptScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/attempts/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	pid := middleware.ParticipantIDFromContext(r.Context())

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		a, err := rt.attempts.GetAttempt(id, pid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAPIAttempt(a))
	case len(parts) == 2 && parts[1] == "answers" && r.Method == http.MethodPost:
		rt.handleAnswers(w, r, id, pid)
	case len(parts) == 2 && parts[1] == "invite" && r.Method == http.MethodPost:
		rt.handleInvite(w, r, id, pid)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleAnswers(w http.ResponseWriter, r *http.Request, id, pid string) {
	var req struct {
		Answers json.RawMessage `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.NewInvalidError("invalid request body"))
		return
	}
	a, err := rt.attempts.CompleteAttempt(id, pid, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIAttempt(a))
}

func (rt *Router) handleInvite(w http.ResponseWriter, r *http.Request, id, pid string) {
	// Only the owner of a finished attempt can invite a partner.
	a, err := rt.attempts.GetAttempt(id, pid)
	if err != nil {
		writeError(w, err)
		return
	}
	if a.Status != services.AttemptFinished {
		writeError(w, services.NewInvalidError("attempt has no recorded answers yet"))
		return
	}
	var tok *services.CompareToken
	if r.URL.Query().Get("fresh") == "1" {
		tok, err = rt.invites.SupersedeAndCreate(id, rt.inviteTTL)
	} else {
		tok, err = rt.invites.GetOrCreatePendingToken(id, rt.inviteTTL)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      tok.Token,
		"expires_at": tok.ExpiresAt,
	})
}

// GET  /api/invites/{token}
// POST /api/invites/{token}/complete
// GET  /api/invites/{token}/share-text
func (rt *Router) handleInviteScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/invites/")
	parts := strings.Split(rest, "/")
	token := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		view, err := rt.resolver.Resolve(token)
		if err != nil {
			writeError(w, err)
			return
		}
		if view.Status == services.TokenStateNotFound {
			writeError(w, services.NewNotFoundError("compare token not found"))
			return
		}
		writeJSON(w, http.StatusOK, view)
	case len(parts) == 2 && parts[1] == "complete" && r.Method == http.MethodPost:
		rt.handleComplete(w, r, token)
	case len(parts) == 2 && parts[1] == "share-text" && r.Method == http.MethodGet:
		text, err := rt.resolver.ShareText(token)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"share_text": text})
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleComplete(w http.ResponseWriter, r *http.Request, token string) {
	var req struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.NewInvalidError("invalid request body"))
		return
	}
	pid := middleware.ParticipantIDFromContext(r.Context())
	paired, err := rt.attempts.GetAttempt(req.AttemptID, pid)
	if err != nil {
		writeError(w, err)
		return
	}
	if paired.Status != services.AttemptFinished {
		writeError(w, services.NewInvalidError("attempt has no recorded answers yet"))
		return
	}
	res, err := rt.invites.CompleteToken(token, req.AttemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     string(res.Token.Status),
		"idempotent": res.Idempotent,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := services.ErrorInternal
	msg := "internal error"
	if se, ok := services.AsServiceError(err); ok {
		code = se.Code
		msg = se.Message
	}
	writeJSON(w, httpStatus(code), map[string]string{
		"error":   string(code),
		"message": msg,
	})
}

func httpStatus(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorExpired:
		return http.StatusGone
	case services.ErrorResourceExhausted, services.ErrorTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
