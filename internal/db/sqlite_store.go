package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/hamdelapp/hamdel/internal/api"
	"github.com/hamdelapp/hamdel/internal/services"
)

// timeLayout is fixed-width UTC at second precision, so stored timestamps
// compare correctly both lexicographically in SQL and after parsing.
const timeLayout = "2006-01-02T15:04:05Z"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore applies the connection pragmas and returns the store.
// Open the database with `_txlock=immediate` in the DSN so write
// transactions take the write lock up front instead of failing midway.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

var _ api.Store = (*SQLiteStore)(nil)

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *SQLiteStore) InsertAttempt(a *api.Attempt) error {
	intake, err := encodeJSON(a.Intake)
	if err != nil {
		return fmt.Errorf("encode intake: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO attempts (id, quiz_id, participant_id, intake_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.QuizID, a.ParticipantID, intake, a.Status, formatTime(a.CreatedAt),
	)
	return err
}

const attemptColumns = `id, quiz_id, participant_id, intake_json, status,
	answers_json, total_score, dimension_scores_json, band_id, created_at, finished_at`

func (s *SQLiteStore) GetAttempt(id string) (*api.Attempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	return scanAttempt(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*api.Attempt, error) {
	var (
		a          api.Attempt
		intake     sql.NullString
		answers    sql.NullString
		dims       sql.NullString
		bandID     sql.NullString
		createdAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.ParticipantID, &intake, &a.Status,
		&answers, &a.TotalScore, &dims, &bandID, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if intake.Valid {
		if err := json.Unmarshal([]byte(intake.String), &a.Intake); err != nil {
			return nil, fmt.Errorf("%w: attempt %s intake: %v", services.ErrMalformedRow, a.ID, err)
		}
	}
	if answers.Valid {
		if err := json.Unmarshal([]byte(answers.String), &a.Answers); err != nil {
			return nil, fmt.Errorf("%w: attempt %s answers: %v", services.ErrMalformedRow, a.ID, err)
		}
	}
	if dims.Valid {
		if err := json.Unmarshal([]byte(dims.String), &a.DimensionScores); err != nil {
			return nil, fmt.Errorf("%w: attempt %s dimension scores: %v", services.ErrMalformedRow, a.ID, err)
		}
	}
	a.BandID = bandID.String
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("%w: attempt %s created_at %q", services.ErrMalformedRow, a.ID, createdAt)
	}
	if finishedAt.Valid {
		if a.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return nil, fmt.Errorf("%w: attempt %s finished_at %q", services.ErrMalformedRow, a.ID, finishedAt.String)
		}
	}
	return &a, nil
}

func (s *SQLiteStore) FinishAttempt(id string, answers []int, total int, dims map[string]float64, bandID string, finishedAt time.Time) (*api.Attempt, error) {
	answersJSON, err := encodeJSON(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	dimsJSON, err := encodeJSON(dims)
	if err != nil {
		return nil, fmt.Errorf("encode dimension scores: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`UPDATE attempts
		 SET status = 'finished', answers_json = ?, total_score = ?,
		     dimension_scores_json = ?, band_id = ?, finished_at = ?
		 WHERE id = ? AND status = 'started'`,
		answersJSON, total, dimsJSON, bandID, formatTime(finishedAt), id,
	)
	if err != nil {
		return nil, err
	}
	a, err := scanAttempt(tx.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

const tokenColumns = `token, subject_attempt_id, paired_attempt_id, status, created_at, expires_at`

func (s *SQLiteStore) InsertPendingTokenIfAbsent(candidate *api.CompareToken, now time.Time) (*api.CompareToken, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanToken(tx.QueryRow(
		`SELECT `+tokenColumns+` FROM compare_tokens
		 WHERE subject_attempt_id = ? AND status = 'pending' AND expires_at >= ?
		 ORDER BY created_at LIMIT 1`,
		candidate.SubjectAttemptID, formatTime(now),
	))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err := insertToken(tx, candidate); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	cp := *candidate
	return &cp, true, nil
}

func (s *SQLiteStore) SupersedePendingAndInsert(candidate *api.CompareToken) (*api.CompareToken, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`UPDATE compare_tokens SET status = 'superseded'
		 WHERE subject_attempt_id = ? AND status = 'pending'`,
		candidate.SubjectAttemptID,
	)
	if err != nil {
		return nil, err
	}
	if err := insertToken(tx, candidate); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	cp := *candidate
	return &cp, nil
}

func insertToken(tx *sql.Tx, t *api.CompareToken) error {
	_, err := tx.Exec(
		`INSERT INTO compare_tokens (token, subject_attempt_id, paired_attempt_id, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Token, t.SubjectAttemptID, toNullString(t.PairedAttemptID), t.Status,
		formatTime(t.CreatedAt), formatTime(t.ExpiresAt),
	)
	if isUniqueViolation(err) {
		return services.ErrTokenCollision
	}
	return err
}

func (s *SQLiteStore) GetCompareToken(token string) (*api.CompareToken, error) {
	return scanToken(s.db.QueryRow(
		`SELECT `+tokenColumns+` FROM compare_tokens WHERE token = ?`, token,
	))
}

func scanToken(row rowScanner) (*api.CompareToken, error) {
	var (
		t         api.CompareToken
		paired    sql.NullString
		createdAt string
		expiresAt string
	)
	err := row.Scan(&t.Token, &t.SubjectAttemptID, &paired, &t.Status, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.PairedAttemptID = paired.String
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("%w: token %s created_at %q", services.ErrMalformedRow, t.Token, createdAt)
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("%w: token %s expires_at %q", services.ErrMalformedRow, t.Token, expiresAt)
	}
	return &t, nil
}

func (s *SQLiteStore) SetTokenCompleted(token, pairedAttemptID string, now time.Time) (*api.CompareToken, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`UPDATE compare_tokens SET status = 'completed', paired_attempt_id = ?
		 WHERE token = ? AND status = 'pending' AND expires_at >= ?`,
		pairedAttemptID, token, formatTime(now),
	)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	t, err := scanToken(tx.QueryRow(
		`SELECT `+tokenColumns+` FROM compare_tokens WHERE token = ?`, token,
	))
	if err != nil {
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return t, affected > 0, nil
}
