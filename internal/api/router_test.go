package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hamdelapp/hamdel/internal/middleware"
)

var testAnswers = []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4, 0, 1}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	NewRouter(nil, time.Hour, nil).Register(mux)
	return middleware.WithIdentity(mux)
}

func bearer(t *testing.T, pid string) string {
	t.Helper()
	tok, err := middleware.SignParticipant(pid, time.Hour)
	if err != nil {
		t.Fatalf("sign participant: %v", err)
	}
	return "Bearer " + tok
}

func doJSON(t *testing.T, h http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createFinishedAttempt(t *testing.T, h http.Handler, auth string, answers []int) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/attempts", auth, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create attempt: status %d body %s", rec.Code, rec.Body.String())
	}
	a := decode[map[string]any](t, rec)
	id := a["id"].(string)
	rec = doJSON(t, h, http.MethodPost, "/api/attempts/"+id+"/answers", auth, map[string]any{"answers": answers})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit answers: status %d body %s", rec.Code, rec.Body.String())
	}
	return id
}

func TestFullPairingFlow(t *testing.T) {
	h := newTestHandler(t)
	alice := bearer(t, "alice-participant")
	bob := bearer(t, "bob-participant")

	subjectID := createFinishedAttempt(t, h, alice, testAnswers)

	rec := doJSON(t, h, http.MethodGet, "/api/attempts/"+subjectID, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get attempt: status %d", rec.Code)
	}
	a := decode[map[string]any](t, rec)
	if a["status"] != "finished" {
		t.Fatalf("status = %v, want finished", a["status"])
	}
	if a["band_id"] == "" {
		t.Fatalf("finished attempt has no band")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/attempts/"+subjectID+"/invite", alice, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invite: status %d body %s", rec.Code, rec.Body.String())
	}
	inv := decode[map[string]any](t, rec)
	token := inv["token"].(string)

	rec = doJSON(t, h, http.MethodGet, "/api/invites/"+token, bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve pending: status %d", rec.Code)
	}
	view := decode[map[string]any](t, rec)
	if view["status"] != "pending" {
		t.Fatalf("resolve status = %v, want pending", view["status"])
	}

	pairedID := createFinishedAttempt(t, h, bob, []int{4, 3, 2, 1, 0, 4, 3, 2, 1, 0, 4, 3})

	rec = doJSON(t, h, http.MethodPost, "/api/invites/"+token+"/complete", bob, map[string]string{"attempt_id": pairedID})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete invite: status %d body %s", rec.Code, rec.Body.String())
	}
	done := decode[map[string]any](t, rec)
	if done["status"] != "completed" || done["idempotent"] != false {
		t.Fatalf("complete = %v", done)
	}

	// Completing the same pairing again is a benign no-op.
	rec = doJSON(t, h, http.MethodPost, "/api/invites/"+token+"/complete", bob, map[string]string{"attempt_id": pairedID})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat complete: status %d", rec.Code)
	}
	done = decode[map[string]any](t, rec)
	if done["idempotent"] != true {
		t.Fatalf("repeat complete idempotent = %v, want true", done["idempotent"])
	}

	rec = doJSON(t, h, http.MethodGet, "/api/invites/"+token, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve completed: status %d", rec.Code)
	}
	view = decode[map[string]any](t, rec)
	if view["status"] != "completed" {
		t.Fatalf("resolve status = %v, want completed", view["status"])
	}
	if view["pairing"] == nil {
		t.Fatalf("completed resolve carries no pairing")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/invites/"+token+"/share-text", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("share text: status %d", rec.Code)
	}
	share := decode[map[string]string](t, rec)
	if share["share_text"] == "" {
		t.Fatalf("empty share text")
	}
}

func TestInviteReuseAndSupersede(t *testing.T) {
	h := newTestHandler(t)
	alice := bearer(t, "alice-participant")
	id := createFinishedAttempt(t, h, alice, testAnswers)

	first := decode[map[string]any](t, doJSON(t, h, http.MethodPost, "/api/attempts/"+id+"/invite", alice, nil))
	second := decode[map[string]any](t, doJSON(t, h, http.MethodPost, "/api/attempts/"+id+"/invite", alice, nil))
	if first["token"] != second["token"] {
		t.Fatalf("repeat invite minted a new token")
	}

	fresh := decode[map[string]any](t, doJSON(t, h, http.MethodPost, "/api/attempts/"+id+"/invite?fresh=1", alice, nil))
	if fresh["token"] == first["token"] {
		t.Fatalf("fresh invite reused the old token")
	}

	// The superseded token now resolves expired and cannot be completed.
	view := decode[map[string]any](t, doJSON(t, h, http.MethodGet, "/api/invites/"+first["token"].(string), alice, nil))
	if view["status"] != "expired" {
		t.Fatalf("superseded token resolves %v, want expired", view["status"])
	}
	bob := bearer(t, "bob-participant")
	pairedID := createFinishedAttempt(t, h, bob, testAnswers)
	rec := doJSON(t, h, http.MethodPost, "/api/invites/"+first["token"].(string)+"/complete", bob, map[string]string{"attempt_id": pairedID})
	if rec.Code != http.StatusGone {
		t.Fatalf("complete superseded: status %d, want 410", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)
	alice := bearer(t, "alice-participant")
	bob := bearer(t, "bob-participant")

	if rec := doJSON(t, h, http.MethodGet, "/api/attempts/nope", alice, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown attempt: status %d, want 404", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/invites/nope", alice, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown invite: status %d, want 404", rec.Code)
	}

	id := createFinishedAttempt(t, h, alice, testAnswers)
	if rec := doJSON(t, h, http.MethodGet, "/api/attempts/"+id, bob, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign attempt: status %d, want 403", rec.Code)
	}

	// Resubmitting answers conflicts.
	rec := doJSON(t, h, http.MethodPost, "/api/attempts/"+id+"/answers", alice, map[string]any{"answers": testAnswers})
	if rec.Code != http.StatusConflict {
		t.Fatalf("resubmit answers: status %d, want 409", rec.Code)
	}

	// Invalid answers are rejected with the offending detail.
	rec = doJSON(t, h, http.MethodPost, "/api/attempts", alice, nil)
	fresh := decode[map[string]any](t, rec)
	rec = doJSON(t, h, http.MethodPost, "/api/attempts/"+fresh["id"].(string)+"/answers", alice, map[string]any{"answers": []int{9, 1, 2, 3, 4, 0, 1, 2, 3, 4, 0, 1}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid answers: status %d, want 400", rec.Code)
	}

	// Inviting from an unfinished attempt is invalid.
	rec = doJSON(t, h, http.MethodPost, "/api/attempts/"+fresh["id"].(string)+"/invite", alice, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invite unfinished: status %d, want 400", rec.Code)
	}
}
