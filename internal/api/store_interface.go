package api

import "time"

// Store is the persistence boundary of the API layer. Implementations
// must make each operation atomic: the conditional token operations are
// single check-and-act units, never a separate read followed by a write.
type Store interface {
	InsertAttempt(a *Attempt) error
	GetAttempt(id string) (*Attempt, error)
	FinishAttempt(id string, answers []int, total int, dims map[string]float64, bandID string, finishedAt time.Time) (*Attempt, error)

	InsertPendingTokenIfAbsent(candidate *CompareToken, now time.Time) (tok *CompareToken, created bool, err error)
	SupersedePendingAndInsert(candidate *CompareToken) (*CompareToken, error)
	GetCompareToken(token string) (*CompareToken, error)
	SetTokenCompleted(token, pairedAttemptID string, now time.Time) (tok *CompareToken, updated bool, err error)
}

var _ Store = (*memoryStore)(nil)
