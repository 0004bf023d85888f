package services

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubTokenStore struct {
	attempts  map[string]*Attempt
	tokens    map[string]*CompareToken
	malformed map[string]bool
	failReads int
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{
		attempts:  map[string]*Attempt{},
		tokens:    map[string]*CompareToken{},
		malformed: map[string]bool{},
	}
}

func (s *stubTokenStore) GetAttempt(id string) (*Attempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *stubTokenStore) InsertPendingTokenIfAbsent(candidate *CompareToken, now time.Time) (*CompareToken, bool, error) {
	for _, t := range s.tokens {
		if t.SubjectAttemptID == candidate.SubjectAttemptID && t.Status == TokenPending && !t.Expired(now) {
			cp := *t
			return &cp, false, nil
		}
	}
	if _, taken := s.tokens[candidate.Token]; taken {
		return nil, false, ErrTokenCollision
	}
	cp := *candidate
	s.tokens[candidate.Token] = &cp
	out := cp
	return &out, true, nil
}

func (s *stubTokenStore) SupersedePendingAndInsert(candidate *CompareToken) (*CompareToken, error) {
	if _, taken := s.tokens[candidate.Token]; taken {
		return nil, ErrTokenCollision
	}
	for _, t := range s.tokens {
		if t.SubjectAttemptID == candidate.SubjectAttemptID && t.Status == TokenPending {
			t.Status = TokenSuperseded
		}
	}
	cp := *candidate
	s.tokens[candidate.Token] = &cp
	out := cp
	return &out, nil
}

func (s *stubTokenStore) GetCompareToken(token string) (*CompareToken, error) {
	if s.failReads > 0 {
		s.failReads--
		return nil, errors.New("store hiccup")
	}
	if s.malformed[token] {
		return nil, fmt.Errorf("parse expires_at: %w", ErrMalformedRow)
	}
	t, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *stubTokenStore) SetTokenCompleted(token, pairedAttemptID string, now time.Time) (*CompareToken, bool, error) {
	t, ok := s.tokens[token]
	if !ok {
		return nil, false, nil
	}
	if t.Status == TokenPending && !t.Expired(now) {
		t.Status = TokenCompleted
		t.PairedAttemptID = pairedAttemptID
		cp := *t
		return &cp, true, nil
	}
	cp := *t
	return &cp, false, nil
}

func newTestInviteService(store *stubTokenStore) *InviteService {
	svc := NewInviteService(store, nil)
	svc.sleep = func(time.Duration) {}
	return svc
}

func seedAttempt(store *stubTokenStore, id string) {
	store.attempts[id] = &Attempt{ID: id, Status: AttemptFinished, Answers: make([]int, QuestionCount)}
}

func TestGetOrCreatePendingTokenIdempotent(t *testing.T) {
	store := newStubTokenStore()
	seedAttempt(store, "A1")
	svc := newTestInviteService(store)

	first, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreatePendingToken error: %v", err)
	}
	second, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreatePendingToken error: %v", err)
	}
	if first.Token != second.Token {
		t.Fatalf("retries diverged: %s vs %s", first.Token, second.Token)
	}
	if first.Status != TokenPending {
		t.Fatalf("status=%s, want pending", first.Status)
	}
}

func TestGetOrCreatePendingTokenSkipsExpired(t *testing.T) {
	store := newStubTokenStore()
	seedAttempt(store, "A1")
	past := time.Now().UTC().Add(-2 * time.Hour)
	store.tokens["stale"] = &CompareToken{
		Token: "stale", SubjectAttemptID: "A1", Status: TokenPending,
		CreatedAt: past, ExpiresAt: past.Add(time.Hour),
	}
	svc := newTestInviteService(store)

	tok, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreatePendingToken error: %v", err)
	}
	if tok.Token == "stale" {
		t.Fatalf("returned the expired token as pending")
	}
	if tok.Expired(time.Now().UTC()) {
		t.Fatalf("fresh token already expired")
	}
}

func TestGetOrCreatePendingTokenMissingAttempt(t *testing.T) {
	svc := newTestInviteService(newStubTokenStore())
	_, err := svc.GetOrCreatePendingToken("ghost", time.Hour)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestGetOrCreatePendingTokenCollisionExhaustion(t *testing.T) {
	store := newStubTokenStore()
	seedAttempt(store, "A1")
	store.tokens["fixed"] = &CompareToken{
		Token: "fixed", SubjectAttemptID: "other", Status: TokenCompleted,
		CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := newTestInviteService(store)
	svc.tokenGen = func() string { return "fixed" }

	_, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorResourceExhausted {
		t.Fatalf("expected resource_exhausted, got %v", err)
	}
}

func TestSupersedeAndCreate(t *testing.T) {
	store := newStubTokenStore()
	seedAttempt(store, "A1")
	svc := newTestInviteService(store)

	old, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreatePendingToken error: %v", err)
	}
	fresh, err := svc.SupersedeAndCreate("A1", time.Hour)
	if err != nil {
		t.Fatalf("SupersedeAndCreate error: %v", err)
	}
	if fresh.Token == old.Token {
		t.Fatalf("supersede returned the old token")
	}
	if store.tokens[old.Token].Status != TokenSuperseded {
		t.Fatalf("old token status=%s, want superseded", store.tokens[old.Token].Status)
	}
	// Superseded tokens stay queryable but are terminal.
	if _, err := svc.CompleteToken(old.Token, "B1"); err == nil {
		t.Fatalf("completed a superseded token")
	}
}

func TestCompleteTokenLifecycle(t *testing.T) {
	store := newStubTokenStore()
	seedAttempt(store, "A1")
	svc := newTestInviteService(store)

	tok, err := svc.GetOrCreatePendingToken("A1", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreatePendingToken error: %v", err)
	}

	res, err := svc.CompleteToken(tok.Token, "B1")
	if err != nil {
		t.Fatalf("CompleteToken error: %v", err)
	}
	if res.Idempotent {
		t.Fatalf("first completion flagged idempotent")
	}
	if res.Token.Status != TokenCompleted || res.Token.PairedAttemptID != "B1" {
		t.Fatalf("unexpected token after completion: %+v", res.Token)
	}

	// Same pairing again: benign no-op.
	res, err = svc.CompleteToken(tok.Token, "B1")
	if err != nil {
		t.Fatalf("repeat CompleteToken error: %v", err)
	}
	if !res.Idempotent {
		t.Fatalf("repeat completion not flagged idempotent")
	}

	// A different pairing is a conflict and never overwrites.
	_, err = svc.CompleteToken(tok.Token, "B2")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.tokens[tok.Token].PairedAttemptID != "B1" {
		t.Fatalf("pairedAttemptID overwritten")
	}
}

func TestCompleteTokenNotFoundAndExpired(t *testing.T) {
	store := newStubTokenStore()
	svc := newTestInviteService(store)

	_, err := svc.CompleteToken("ghost", "B1")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}

	past := time.Now().UTC().Add(-2 * time.Hour)
	store.tokens["old"] = &CompareToken{
		Token: "old", SubjectAttemptID: "A1", Status: TokenPending,
		CreatedAt: past, ExpiresAt: past.Add(time.Hour),
	}
	_, err = svc.CompleteToken("old", "B1")
	se, ok = AsServiceError(err)
	if !ok || se.Code != ErrorExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if store.tokens["old"].Status != TokenPending {
		t.Fatalf("expired token mutated: %s", store.tokens["old"].Status)
	}
}

func TestResolveTokenOutcomes(t *testing.T) {
	store := newStubTokenStore()
	svc := newTestInviteService(store)
	now := time.Now().UTC()

	res, err := svc.ResolveToken("ghost")
	if err != nil {
		t.Fatalf("ResolveToken error: %v", err)
	}
	if res.State != TokenStateNotFound {
		t.Fatalf("state=%s, want not_found", res.State)
	}

	store.tokens["p"] = &CompareToken{
		Token: "p", SubjectAttemptID: "A1", Status: TokenPending,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	res, err = svc.ResolveToken("p")
	if err != nil {
		t.Fatalf("ResolveToken error: %v", err)
	}
	if res.State != TokenStatePending || res.SubjectAttemptID != "A1" {
		t.Fatalf("unexpected pending resolution: %+v", res)
	}

	store.tokens["c"] = &CompareToken{
		Token: "c", SubjectAttemptID: "A1", PairedAttemptID: "B1", Status: TokenCompleted,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	res, err = svc.ResolveToken("c")
	if err != nil {
		t.Fatalf("ResolveToken error: %v", err)
	}
	if res.State != TokenStateCompleted || res.PairedAttemptID != "B1" {
		t.Fatalf("unexpected completed resolution: %+v", res)
	}

	// Past expiry wins regardless of stored status.
	store.tokens["c"].ExpiresAt = now.Add(-time.Minute)
	res, err = svc.ResolveToken("c")
	if err != nil {
		t.Fatalf("ResolveToken error: %v", err)
	}
	if res.State != TokenStateExpired {
		t.Fatalf("state=%s, want expired", res.State)
	}
}

func TestResolveTokenMalformedRow(t *testing.T) {
	store := newStubTokenStore()
	store.malformed["bad"] = true
	svc := newTestInviteService(store)

	_, err := svc.ResolveToken("bad")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInternal {
		t.Fatalf("expected internal anomaly, got %v", err)
	}
}

func TestResolveTokenTransientRetry(t *testing.T) {
	store := newStubTokenStore()
	now := time.Now().UTC()
	store.tokens["p"] = &CompareToken{
		Token: "p", SubjectAttemptID: "A1", Status: TokenPending,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	store.failReads = 2
	svc := newTestInviteService(store)

	res, err := svc.ResolveToken("p")
	if err != nil {
		t.Fatalf("ResolveToken should retry transient failures: %v", err)
	}
	if res.State != TokenStatePending {
		t.Fatalf("state=%s, want pending", res.State)
	}

	store.failReads = storeReadAttempts
	_, err = svc.ResolveToken("p")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorTransientStore {
		t.Fatalf("expected transient_store after exhausting retries, got %v", err)
	}
}
