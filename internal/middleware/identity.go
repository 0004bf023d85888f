package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type identityCtxKey int

const participantKey identityCtxKey = 7

// identityCookie carries the signed anonymous participant identity. There
// are no accounts: the first request mints an id and every later request
// from the same browser presents it back.
const identityCookie = "hamdel_pid"

const identityTTL = 365 * 24 * time.Hour

type participantClaims struct {
	PID string `json:"pid"`
	jwt.RegisteredClaims
}

func secret() []byte {
	s := os.Getenv("HAMDEL_JWT_SECRET")
	if s == "" {
		s = "hamdel-dev-secret"
	}
	return []byte(s)
}

// SignParticipant issues a signed identity token for the given participant.
func SignParticipant(pid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := participantClaims{PID: pid, RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(ttl))}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

func parseParticipant(tok string) (*participantClaims, error) {
	t, err := jwt.ParseWithClaims(tok, &participantClaims{}, func(token *jwt.Token) (interface{}, error) { return secret(), nil })
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*participantClaims); ok && t.Valid && c.PID != "" {
		return c, nil
	}
	return nil, errors.New("invalid identity token")
}

// WithIdentity attaches an anonymous participant id to the request
// context. An existing valid cookie or Bearer token is honored; anything
// else gets a freshly minted identity and a new cookie.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pid := presentedParticipant(r); pid != "" {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), participantKey, pid)))
			return
		}
		pid := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		if signed, err := SignParticipant(pid, identityTTL); err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     identityCookie,
				Value:    signed,
				Path:     "/",
				MaxAge:   int(identityTTL / time.Second),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), participantKey, pid)))
	})
}

func presentedParticipant(r *http.Request) string {
	if c, err := r.Cookie(identityCookie); err == nil {
		if claims, err := parseParticipant(c.Value); err == nil {
			return claims.PID
		}
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if claims, err := parseParticipant(tok); err == nil {
			return claims.PID
		}
	}
	return ""
}

// ParticipantIDFromContext returns the participant id attached by
// WithIdentity, or "" when the middleware did not run.
func ParticipantIDFromContext(ctx context.Context) string {
	if pid, ok := ctx.Value(participantKey).(string); ok {
		return pid
	}
	return ""
}
