package services

import "time"

// ResolveStore is the read-only attempt access the resolution layer needs.
type ResolveStore interface {
	GetAttempt(id string) (*Attempt, error)
}

// Pairing is the comparison payload attached to a completed session. It is
// recomputed from the stored answers on every read, never persisted, so it
// always reflects the current scoring logic.
type Pairing struct {
	SubjectScore int                 `json:"subject_score"`
	PairedScore  int                 `json:"paired_score"`
	PerQuestion  *QuestionComparison `json:"per_question"`
	Insight      *InsightReport      `json:"insight"`
}

// SessionView is the discriminated outcome the resolution layer hands to
// callers. Pending carries just enough to poll; expired carries no
// sensitive data; completed carries the full comparison.
type SessionView struct {
	Status           TokenState `json:"status"`
	SubjectAttemptID string     `json:"subject_attempt_id,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Pairing          *Pairing   `json:"pairing,omitempty"`
}

// ResolveService wraps token resolution for external consumption. It never
// writes.
type ResolveService struct {
	invites *InviteService
	store   ResolveStore
	content *ContentCache
}

func NewResolveService(invites *InviteService, store ResolveStore, content *ContentCache) *ResolveService {
	return &ResolveService{invites: invites, store: store, content: content}
}

// Resolve classifies the token and, for completed sessions, builds the
// comparison payload on demand from both attempts' stored answers.
func (s *ResolveService) Resolve(token string) (*SessionView, error) {
	res, err := s.invites.ResolveToken(token)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case TokenStateNotFound:
		return &SessionView{Status: TokenStateNotFound}, nil
	case TokenStateExpired:
		return &SessionView{Status: TokenStateExpired}, nil
	case TokenStatePending:
		exp := res.ExpiresAt
		return &SessionView{
			Status:           TokenStatePending,
			SubjectAttemptID: res.SubjectAttemptID,
			ExpiresAt:        &exp,
		}, nil
	case TokenStateCompleted:
		pairing, err := s.buildPairing(res.SubjectAttemptID, res.PairedAttemptID)
		if err != nil {
			return nil, err
		}
		exp := res.ExpiresAt
		return &SessionView{
			Status:           TokenStateCompleted,
			SubjectAttemptID: res.SubjectAttemptID,
			ExpiresAt:        &exp,
			Pairing:          pairing,
		}, nil
	default:
		return nil, NewInternalError("unknown token state " + string(res.State))
	}
}

// ShareText returns the deterministic share text of a completed session.
func (s *ResolveService) ShareText(token string) (string, error) {
	view, err := s.Resolve(token)
	if err != nil {
		return "", err
	}
	switch view.Status {
	case TokenStateCompleted:
		return view.Pairing.Insight.ShareText, nil
	case TokenStateExpired:
		return "", NewExpiredError("invite link expired")
	case TokenStatePending:
		return "", NewInvalidError("comparison not ready")
	default:
		return "", NewNotFoundError("compare token not found")
	}
}

func (s *ResolveService) buildPairing(subjectAttemptID, pairedAttemptID string) (*Pairing, error) {
	subject, err := s.finishedAttempt(subjectAttemptID)
	if err != nil {
		return nil, err
	}
	paired, err := s.finishedAttempt(pairedAttemptID)
	if err != nil {
		return nil, err
	}
	content, err := s.content.Get()
	if err != nil {
		return nil, err
	}
	perQuestion, err := ComparePerQuestion(subject.Answers, paired.Answers, content)
	if err != nil {
		return nil, err
	}
	insight, err := BuildInsight(subject.Answers, paired.Answers, content)
	if err != nil {
		return nil, err
	}
	subjectTotal, err := ComputeTotalScore(subject.Answers)
	if err != nil {
		return nil, err
	}
	pairedTotal, err := ComputeTotalScore(paired.Answers)
	if err != nil {
		return nil, err
	}
	return &Pairing{
		SubjectScore: subjectTotal,
		PairedScore:  pairedTotal,
		PerQuestion:  perQuestion,
		Insight:      insight,
	}, nil
}

// finishedAttempt loads an attempt referenced by a completed token. A
// completed token always points at finished attempts, so anything else is
// a data anomaly rather than a caller error.
func (s *ResolveService) finishedAttempt(id string) (*Attempt, error) {
	a, err := s.store.GetAttempt(id)
	if err != nil {
		return nil, storeErr(err)
	}
	if a == nil {
		return nil, NewInternalError("attempt " + id + " referenced by completed token is missing")
	}
	if a.Status != AttemptFinished || len(a.Answers) != QuestionCount {
		return nil, NewInternalError("attempt " + id + " referenced by completed token has no recorded answers")
	}
	return a, nil
}
