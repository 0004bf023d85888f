package services

import "time"

// QuestionCount is the fixed length of an answer vector. The questionnaire
// has exactly 12 items answered on a 0..4 scale.
const (
	QuestionCount = 12
	MaxAnswer     = 4
	MaxTotalScore = QuestionCount * MaxAnswer
)

// DimensionKey names one of the four scored axes of the questionnaire.
type DimensionKey string

const (
	DimStickiness    DimensionKey = "stickiness"
	DimPastBrooding  DimensionKey = "pastBrooding"
	DimFutureWorry   DimensionKey = "futureWorry"
	DimInterpersonal DimensionKey = "interpersonal"
)

// DimensionKeys is the canonical iteration order for dimension maps.
var DimensionKeys = []DimensionKey{DimStickiness, DimPastBrooding, DimFutureWorry, DimInterpersonal}

// AttemptStatus tracks one respondent's run through the questionnaire.
type AttemptStatus string

const (
	AttemptStarted  AttemptStatus = "started"
	AttemptFinished AttemptStatus = "finished"
)

// Attempt is one respondent's full run: raw answers plus derived scores.
// Answers and scores are write-once; they are set when the attempt
// finishes and never mutated afterwards.
type Attempt struct {
	ID              string
	QuizID          string
	ParticipantID   string
	Intake          map[string]string
	Status          AttemptStatus
	Answers         []int
	TotalScore      int
	DimensionScores map[DimensionKey]float64
	BandID          string
	CreatedAt       time.Time
	FinishedAt      time.Time
}

// TokenStatus is the stored state of a compare token. Expiry is never
// stored; it is derived from ExpiresAt at read time.
type TokenStatus string

const (
	TokenPending    TokenStatus = "pending"
	TokenCompleted  TokenStatus = "completed"
	TokenSuperseded TokenStatus = "superseded"
)

// CompareToken is one invite/pairing session between two attempts.
type CompareToken struct {
	Token            string
	SubjectAttemptID string
	PairedAttemptID  string
	Status           TokenStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the token is past its TTL at the given instant.
func (t *CompareToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Telemetry receives fire-and-forget product events. Implementations must
// never block or fail the caller; core correctness does not depend on
// events being delivered.
type Telemetry interface {
	Emit(event string, fields map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Emit(string, map[string]any) {}

// NoopTelemetry discards all events. It is the default observer.
var NoopTelemetry Telemetry = noopTelemetry{}
