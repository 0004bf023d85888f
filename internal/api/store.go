package api

import (
	"sync"
	"time"

	"github.com/hamdelapp/hamdel/internal/services"
)

// Attempt is the stored shape of one questionnaire run.
type Attempt struct {
	ID              string             `json:"id"`
	QuizID          string             `json:"quiz_id"`
	ParticipantID   string             `json:"participant_id"`
	Intake          map[string]string  `json:"intake,omitempty"`
	Status          string             `json:"status"`
	Answers         []int              `json:"answers,omitempty"`
	TotalScore      int                `json:"total_score"`
	DimensionScores map[string]float64 `json:"dimension_scores,omitempty"`
	BandID          string             `json:"band_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	FinishedAt      time.Time          `json:"finished_at,omitempty"`
}

// CompareToken is the stored shape of one invite/pairing session.
type CompareToken struct {
	Token            string    `json:"token"`
	SubjectAttemptID string    `json:"subject_attempt_id"`
	PairedAttemptID  string    `json:"paired_attempt_id,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// memoryStore keeps everything under one lock, which trivially satisfies
// the atomicity contract. Used for tests and local development.
type memoryStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	tokens   map[string]*CompareToken
	order    []string // token insertion order, for deterministic scans
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		attempts: map[string]*Attempt{},
		tokens:   map[string]*CompareToken{},
	}
}

func (s *memoryStore) InsertAttempt(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *memoryStore) GetAttempt(id string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) FinishAttempt(id string, answers []int, total int, dims map[string]float64, bandID string, finishedAt time.Time) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	if a.Status == "started" {
		a.Status = "finished"
		a.Answers = append([]int(nil), answers...)
		a.TotalScore = total
		a.DimensionScores = dims
		a.BandID = bandID
		a.FinishedAt = finishedAt
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) InsertPendingTokenIfAbsent(candidate *CompareToken, now time.Time) (*CompareToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.order {
		t := s.tokens[token]
		if t.SubjectAttemptID == candidate.SubjectAttemptID && t.Status == "pending" && !now.After(t.ExpiresAt) {
			cp := *t
			return &cp, false, nil
		}
	}
	if _, taken := s.tokens[candidate.Token]; taken {
		return nil, false, services.ErrTokenCollision
	}
	cp := *candidate
	s.tokens[candidate.Token] = &cp
	s.order = append(s.order, candidate.Token)
	out := cp
	return &out, true, nil
}

func (s *memoryStore) SupersedePendingAndInsert(candidate *CompareToken) (*CompareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.tokens[candidate.Token]; taken {
		return nil, services.ErrTokenCollision
	}
	for _, t := range s.tokens {
		if t.SubjectAttemptID == candidate.SubjectAttemptID && t.Status == "pending" {
			t.Status = "superseded"
		}
	}
	cp := *candidate
	s.tokens[candidate.Token] = &cp
	s.order = append(s.order, candidate.Token)
	out := cp
	return &out, nil
}

func (s *memoryStore) GetCompareToken(token string) (*CompareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memoryStore) SetTokenCompleted(token, pairedAttemptID string, now time.Time) (*CompareToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, false, nil
	}
	if t.Status == "pending" && !now.After(t.ExpiresAt) {
		t.Status = "completed"
		t.PairedAttemptID = pairedAttemptID
		cp := *t
		return &cp, true, nil
	}
	cp := *t
	return &cp, false, nil
}
