package api

import (
	"time"

	"github.com/hamdelapp/hamdel/internal/services"
)

type inviteStoreAdapter struct {
	store Store
}

func newInviteStoreAdapter(store Store) services.TokenStore {
	return &inviteStoreAdapter{store: store}
}

func (a *inviteStoreAdapter) GetAttempt(id string) (*services.Attempt, error) {
	row, err := a.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	return toServiceAttempt(row), nil
}

func (a *inviteStoreAdapter) InsertPendingTokenIfAbsent(candidate *services.CompareToken, now time.Time) (*services.CompareToken, bool, error) {
	row, created, err := a.store.InsertPendingTokenIfAbsent(toAPIToken(candidate), now)
	if err != nil {
		return nil, false, err
	}
	return toServiceToken(row), created, nil
}

func (a *inviteStoreAdapter) SupersedePendingAndInsert(candidate *services.CompareToken) (*services.CompareToken, error) {
	row, err := a.store.SupersedePendingAndInsert(toAPIToken(candidate))
	if err != nil {
		return nil, err
	}
	return toServiceToken(row), nil
}

func (a *inviteStoreAdapter) GetCompareToken(token string) (*services.CompareToken, error) {
	row, err := a.store.GetCompareToken(token)
	if err != nil {
		return nil, err
	}
	return toServiceToken(row), nil
}

func (a *inviteStoreAdapter) SetTokenCompleted(token, pairedAttemptID string, now time.Time) (*services.CompareToken, bool, error) {
	row, updated, err := a.store.SetTokenCompleted(token, pairedAttemptID, now)
	if err != nil {
		return nil, false, err
	}
	return toServiceToken(row), updated, nil
}

var _ services.TokenStore = (*inviteStoreAdapter)(nil)

func toAPIToken(t *services.CompareToken) *CompareToken {
	return &CompareToken{
		Token:            t.Token,
		SubjectAttemptID: t.SubjectAttemptID,
		PairedAttemptID:  t.PairedAttemptID,
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt,
		ExpiresAt:        t.ExpiresAt,
	}
}

func toServiceToken(row *CompareToken) *services.CompareToken {
	if row == nil {
		return nil
	}
	return &services.CompareToken{
		Token:            row.Token,
		SubjectAttemptID: row.SubjectAttemptID,
		PairedAttemptID:  row.PairedAttemptID,
		Status:           services.TokenStatus(row.Status),
		CreatedAt:        row.CreatedAt,
		ExpiresAt:        row.ExpiresAt,
	}
}
