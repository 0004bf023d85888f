package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttemptStore abstracts persistence for questionnaire runs.
type AttemptStore interface {
	InsertAttempt(a *Attempt) error
	GetAttempt(id string) (*Attempt, error)

	// FinishAttempt records answers and derived scores if and only if the
	// attempt is still started, then returns the post-image. A missing
	// attempt yields nil, nil.
	FinishAttempt(id string, answers []int, total int, dims map[DimensionKey]float64, bandID string, finishedAt time.Time) (*Attempt, error)
}

// AttemptService hosts the questionnaire run workflow: create, answer,
// read back.
type AttemptService struct {
	store     AttemptStore
	content   *ContentCache
	telemetry Telemetry
	now       func() time.Time
	idGen     func() string
}

func NewAttemptService(store AttemptStore, content *ContentCache, telemetry Telemetry) *AttemptService {
	if telemetry == nil {
		telemetry = NoopTelemetry
	}
	return &AttemptService{
		store:     store,
		content:   content,
		telemetry: telemetry,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     defaultAttemptID,
	}
}

func defaultAttemptID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CreateAttempt opens a new run for the participant.
func (s *AttemptService) CreateAttempt(quizID, participantID string, intake map[string]string) (*Attempt, error) {
	if quizID == "" {
		return nil, NewInvalidError("quiz id required")
	}
	if participantID == "" {
		return nil, NewInvalidError("participant id required")
	}
	a := &Attempt{
		ID:            s.idGen(),
		QuizID:        quizID,
		ParticipantID: participantID,
		Intake:        intake,
		Status:        AttemptStarted,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertAttempt(a); err != nil {
		return nil, storeErr(err)
	}
	s.telemetry.Emit("attempt_created", map[string]any{"attempt_id": a.ID, "quiz_id": quizID})
	return a, nil
}

// CompleteAttempt validates and scores the submitted answers and finishes
// the run. Answers are write-once: finishing an already finished attempt
// is a conflict.
func (s *AttemptService) CompleteAttempt(attemptID, participantID string, rawAnswers json.RawMessage) (*Attempt, error) {
	if attemptID == "" {
		return nil, NewInvalidError("attempt id required")
	}
	current, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return nil, storeErr(err)
	}
	if current == nil {
		return nil, NewNotFoundError("attempt not found")
	}
	if participantID != "" && current.ParticipantID != participantID {
		return nil, NewForbiddenError("attempt belongs to another participant")
	}
	if current.Status == AttemptFinished {
		return nil, NewConflictError("attempt already completed")
	}

	answers, err := NormalizeAnswers(rawAnswers)
	if err != nil {
		return nil, err
	}
	total, err := ComputeTotalScore(answers)
	if err != nil {
		return nil, err
	}
	dims, err := ComputeDimensionScores(answers)
	if err != nil {
		return nil, err
	}
	content, err := s.content.Get()
	if err != nil {
		return nil, err
	}
	band, err := content.BandForTotal(total)
	if err != nil {
		return nil, err
	}

	finished, err := s.store.FinishAttempt(attemptID, answers, total, dims, band.ID, s.now())
	if err != nil {
		return nil, storeErr(err)
	}
	if finished == nil {
		return nil, NewNotFoundError("attempt not found")
	}
	if finished.Status != AttemptFinished || finished.TotalScore != total {
		// Lost a race against a concurrent submission of the same attempt.
		return nil, NewConflictError("attempt already completed")
	}
	s.telemetry.Emit("attempt_finished", map[string]any{"attempt_id": attemptID, "band": band.ID})
	return finished, nil
}

// GetAttempt reads an attempt, guarded so respondents only see their own.
func (s *AttemptService) GetAttempt(attemptID, participantID string) (*Attempt, error) {
	if attemptID == "" {
		return nil, NewInvalidError("attempt id required")
	}
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return nil, storeErr(err)
	}
	if a == nil {
		return nil, NewNotFoundError("attempt not found")
	}
	if participantID != "" && a.ParticipantID != participantID {
		return nil, NewForbiddenError("attempt belongs to another participant")
	}
	return a, nil
}
