package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxTokenGenAttempts bounds how many fresh token candidates are tried
// when an insert collides with an existing token string.
const maxTokenGenAttempts = 5

// storeReadAttempts bounds retries of read-only store calls that fail
// transiently.
const storeReadAttempts = 3

// ErrMalformedRow marks a token row whose stored fields cannot be
// interpreted (e.g. an unparseable expiry timestamp). It is an anomaly to
// surface, never silently treated as expired.
var ErrMalformedRow = errors.New("malformed token row")

// TokenStore abstracts the atomic persistence operations of the invite
// lifecycle. Every mutating operation must be a single atomic unit at the
// store: concurrent callers racing on the same subject or token must never
// observe two pending tokens for one subject or two different pairings.
type TokenStore interface {
	GetAttempt(id string) (*Attempt, error)

	// InsertPendingTokenIfAbsent returns an existing non-expired pending
	// token for the candidate's subject unchanged, or inserts the
	// candidate, as one atomic check-and-insert. created reports whether
	// the candidate was inserted. ErrTokenCollision is returned when the
	// candidate's token string is already taken.
	InsertPendingTokenIfAbsent(candidate *CompareToken, now time.Time) (tok *CompareToken, created bool, err error)

	// SupersedePendingAndInsert marks every pending token of the
	// candidate's subject superseded and inserts the candidate, in one
	// transaction. ErrTokenCollision as above.
	SupersedePendingAndInsert(candidate *CompareToken) (*CompareToken, error)

	// GetCompareToken returns nil, nil when no row exists. A row whose
	// stored fields cannot be parsed yields an error wrapping
	// ErrMalformedRow.
	GetCompareToken(token string) (*CompareToken, error)

	// SetTokenCompleted transitions the row to completed with the given
	// pairing if and only if it is currently pending and not expired at
	// now, then returns the post-image and whether this call performed
	// the transition. A missing row yields nil, false, nil. The
	// conditional update and the read of the post-image are one atomic
	// unit.
	SetTokenCompleted(token, pairedAttemptID string, now time.Time) (tok *CompareToken, updated bool, err error)
}

// TokenState is the externally visible classification of a token.
type TokenState string

const (
	TokenStateNotFound  TokenState = "not_found"
	TokenStateExpired   TokenState = "expired"
	TokenStatePending   TokenState = "pending"
	TokenStateCompleted TokenState = "completed"
)

// TokenResolution is the discriminated read-time outcome for a token.
type TokenResolution struct {
	State            TokenState
	SubjectAttemptID string
	PairedAttemptID  string
	ExpiresAt        time.Time
}

// CompleteResult reports a successful pairing. Idempotent is true when the
// identical pairing was already recorded and the call was a no-op.
type CompleteResult struct {
	Token      *CompareToken
	Idempotent bool
}

// InviteService owns the compare-token state machine. It is the only
// component that writes token rows.
type InviteService struct {
	store     TokenStore
	telemetry Telemetry
	now       func() time.Time
	tokenGen  func() string
	sleep     func(time.Duration)
}

func NewInviteService(store TokenStore, telemetry Telemetry) *InviteService {
	if telemetry == nil {
		telemetry = NoopTelemetry
	}
	return &InviteService{
		store:     store,
		telemetry: telemetry,
		now:       func() time.Time { return time.Now().UTC() },
		tokenGen:  defaultCompareToken,
		sleep:     time.Sleep,
	}
}

func defaultCompareToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GetOrCreatePendingToken returns the subject's current non-expired
// pending token, or creates a fresh one. Retries of the same request
// converge on the same token. Token-string collisions are retried a
// bounded number of times before giving up.
func (s *InviteService) GetOrCreatePendingToken(subjectAttemptID string, ttl time.Duration) (*CompareToken, error) {
	if subjectAttemptID == "" {
		return nil, NewInvalidError("subject attempt id required")
	}
	if err := s.checkAttemptExists(subjectAttemptID); err != nil {
		return nil, err
	}
	for i := 0; i < maxTokenGenAttempts; i++ {
		now := s.now()
		candidate := s.newCandidate(subjectAttemptID, now, ttl)
		tok, created, err := s.store.InsertPendingTokenIfAbsent(candidate, now)
		if errors.Is(err, ErrTokenCollision) {
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		if created {
			s.telemetry.Emit("token_created", map[string]any{"subject_attempt_id": subjectAttemptID})
		} else {
			s.telemetry.Emit("token_reused", map[string]any{"subject_attempt_id": subjectAttemptID})
		}
		return tok, nil
	}
	return nil, NewResourceExhaustedError("could not allocate a unique compare token")
}

// SupersedeAndCreate invalidates every pending token of the subject and
// creates a guaranteed-fresh one. Superseded tokens stay queryable but can
// never transition again.
func (s *InviteService) SupersedeAndCreate(subjectAttemptID string, ttl time.Duration) (*CompareToken, error) {
	if subjectAttemptID == "" {
		return nil, NewInvalidError("subject attempt id required")
	}
	if err := s.checkAttemptExists(subjectAttemptID); err != nil {
		return nil, err
	}
	for i := 0; i < maxTokenGenAttempts; i++ {
		candidate := s.newCandidate(subjectAttemptID, s.now(), ttl)
		tok, err := s.store.SupersedePendingAndInsert(candidate)
		if errors.Is(err, ErrTokenCollision) {
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		s.telemetry.Emit("token_superseded", map[string]any{"subject_attempt_id": subjectAttemptID})
		return tok, nil
	}
	return nil, NewResourceExhaustedError("could not allocate a unique compare token")
}

// CompleteToken binds the paired attempt to a pending token. Completing
// the same pairing twice is a benign no-op; a second completion with a
// different attempt is a conflict. Completion on an expired or superseded
// token fails with an expired error.
func (s *InviteService) CompleteToken(token, pairedAttemptID string) (*CompleteResult, error) {
	if token == "" || pairedAttemptID == "" {
		return nil, NewInvalidError("token and paired attempt id required")
	}
	now := s.now()
	row, updated, err := s.store.SetTokenCompleted(token, pairedAttemptID, now)
	if err != nil {
		return nil, storeErr(err)
	}
	if row == nil {
		return nil, NewNotFoundError("compare token not found")
	}
	switch row.Status {
	case TokenCompleted:
		if row.PairedAttemptID == pairedAttemptID {
			if updated {
				s.telemetry.Emit("token_completed", map[string]any{"token": token})
			}
			return &CompleteResult{Token: row, Idempotent: !updated}, nil
		}
		return nil, NewConflictError("invite already used by another attempt")
	case TokenSuperseded:
		return nil, NewExpiredError("invite link superseded")
	case TokenPending:
		// The conditional update declined: the only remaining cause is
		// expiry at call time.
		return nil, NewExpiredError("invite link expired")
	default:
		return nil, NewInternalError("unknown token status " + string(row.Status))
	}
}

// ResolveToken classifies a token for read-only consumption. Absence and
// expiry are distinct outcomes. A token past its expiry resolves expired
// regardless of its stored status.
func (s *InviteService) ResolveToken(token string) (*TokenResolution, error) {
	if token == "" {
		return nil, NewInvalidError("token required")
	}
	row, err := s.readToken(token)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &TokenResolution{State: TokenStateNotFound}, nil
	}
	now := s.now()
	if row.Expired(now) {
		return &TokenResolution{State: TokenStateExpired, ExpiresAt: row.ExpiresAt}, nil
	}
	switch row.Status {
	case TokenPending:
		return &TokenResolution{
			State:            TokenStatePending,
			SubjectAttemptID: row.SubjectAttemptID,
			ExpiresAt:        row.ExpiresAt,
		}, nil
	case TokenCompleted:
		return &TokenResolution{
			State:            TokenStateCompleted,
			SubjectAttemptID: row.SubjectAttemptID,
			PairedAttemptID:  row.PairedAttemptID,
			ExpiresAt:        row.ExpiresAt,
		}, nil
	case TokenSuperseded:
		return &TokenResolution{State: TokenStateExpired, ExpiresAt: row.ExpiresAt}, nil
	default:
		return nil, NewInternalError("unknown token status " + string(row.Status))
	}
}

func (s *InviteService) newCandidate(subjectAttemptID string, now time.Time, ttl time.Duration) *CompareToken {
	return &CompareToken{
		Token:            s.tokenGen(),
		SubjectAttemptID: subjectAttemptID,
		Status:           TokenPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
}

func (s *InviteService) checkAttemptExists(attemptID string) error {
	a, err := s.store.GetAttempt(attemptID)
	if err != nil {
		return storeErr(err)
	}
	if a == nil {
		return NewNotFoundError("subject attempt not found")
	}
	return nil
}

// readToken retries transient read failures a bounded number of times
// with a short backoff. Malformed rows are never retried.
func (s *InviteService) readToken(token string) (*CompareToken, error) {
	var lastErr error
	for i := 0; i < storeReadAttempts; i++ {
		if i > 0 {
			s.sleep(time.Duration(i) * 50 * time.Millisecond)
		}
		row, err := s.store.GetCompareToken(token)
		if err == nil {
			return row, nil
		}
		if errors.Is(err, ErrMalformedRow) {
			return nil, NewInternalError(err.Error())
		}
		if _, ok := AsServiceError(err); ok {
			return nil, err
		}
		lastErr = err
	}
	return nil, NewTransientStoreError(lastErr.Error())
}
