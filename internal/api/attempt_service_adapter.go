package api

import (
	"time"

	"github.com/hamdelapp/hamdel/internal/services"
)

type attemptStoreAdapter struct {
	store Store
}

func newAttemptStoreAdapter(store Store) services.AttemptStore {
	return &attemptStoreAdapter{store: store}
}

func (a *attemptStoreAdapter) InsertAttempt(att *services.Attempt) error {
	return a.store.InsertAttempt(toAPIAttempt(att))
}

func (a *attemptStoreAdapter) GetAttempt(id string) (*services.Attempt, error) {
	row, err := a.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	return toServiceAttempt(row), nil
}

func (a *attemptStoreAdapter) FinishAttempt(id string, answers []int, total int, dims map[services.DimensionKey]float64, bandID string, finishedAt time.Time) (*services.Attempt, error) {
	row, err := a.store.FinishAttempt(id, answers, total, dimsToStrings(dims), bandID, finishedAt)
	if err != nil {
		return nil, err
	}
	return toServiceAttempt(row), nil
}

var _ services.AttemptStore = (*attemptStoreAdapter)(nil)

func toAPIAttempt(att *services.Attempt) *Attempt {
	return &Attempt{
		ID:              att.ID,
		QuizID:          att.QuizID,
		ParticipantID:   att.ParticipantID,
		Intake:          att.Intake,
		Status:          string(att.Status),
		Answers:         att.Answers,
		TotalScore:      att.TotalScore,
		DimensionScores: dimsToStrings(att.DimensionScores),
		BandID:          att.BandID,
		CreatedAt:       att.CreatedAt,
		FinishedAt:      att.FinishedAt,
	}
}

func toServiceAttempt(row *Attempt) *services.Attempt {
	if row == nil {
		return nil
	}
	return &services.Attempt{
		ID:              row.ID,
		QuizID:          row.QuizID,
		ParticipantID:   row.ParticipantID,
		Intake:          row.Intake,
		Status:          services.AttemptStatus(row.Status),
		Answers:         row.Answers,
		TotalScore:      row.TotalScore,
		DimensionScores: dimsFromStrings(row.DimensionScores),
		BandID:          row.BandID,
		CreatedAt:       row.CreatedAt,
		FinishedAt:      row.FinishedAt,
	}
}

func dimsToStrings(dims map[services.DimensionKey]float64) map[string]float64 {
	if dims == nil {
		return nil
	}
	out := make(map[string]float64, len(dims))
	for k, v := range dims {
		out[string(k)] = v
	}
	return out
}

func dimsFromStrings(dims map[string]float64) map[services.DimensionKey]float64 {
	if dims == nil {
		return nil
	}
	out := make(map[services.DimensionKey]float64, len(dims))
	for k, v := range dims {
		out[services.DimensionKey(k)] = v
	}
	return out
}
