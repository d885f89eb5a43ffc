package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout       = 5 * time.Second
	uniqueViolation = "23505"
)

const attemptColumns = `id::text, evaluation_id::text, user_id, attempt_number, answers, started_at, submitted_at,
	score, total_points, percentage, is_passed, late_submission, results, manual_scores`

const evaluationColumns = `id::text, COALESCE(program_id, ''), title, COALESCE(description, ''), questions,
	passing_score, max_attempts, time_limit_minutes, is_published, created_at, updated_at`

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed evaluation store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// validID reports whether id can match a uuid primary key. Malformed IDs
// never reach a $n::uuid cast, which would fail with 22P02.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func (s *PostgresStore) CreateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	questions, err := json.Marshal(nonNil(ev.Questions))
	if err != nil {
		return Evaluation{}, fmt.Errorf("marshal questions: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO evaluations (program_id, title, description, questions, passing_score,
		                          max_attempts, time_limit_minutes, is_published)
		 VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4::jsonb, $5, $6, $7, $8)
		 RETURNING `+evaluationColumns,
		ev.ProgramID, ev.Title, ev.Description, string(questions),
		ev.PassingScore, ev.MaxAttempts, ev.TimeLimitMinutes, ev.Published,
	)
	created, err := scanEvaluation(row)
	if err != nil {
		return Evaluation{}, fmt.Errorf("create evaluation: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateEvaluation(ctx context.Context, ev Evaluation) error {
	if !validID(ev.ID) {
		return fmt.Errorf("evaluation %s: %w", ev.ID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	questions, err := json.Marshal(nonNil(ev.Questions))
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE evaluations
		 SET program_id = NULLIF($2, ''), title = $3, description = NULLIF($4, ''), questions = $5::jsonb,
		     passing_score = $6, max_attempts = $7, time_limit_minutes = $8, is_published = $9,
		     updated_at = NOW()
		 WHERE id = $1::uuid`,
		ev.ID, ev.ProgramID, ev.Title, ev.Description, string(questions),
		ev.PassingScore, ev.MaxAttempts, ev.TimeLimitMinutes, ev.Published,
	)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("evaluation %s: %w", ev.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	if !validID(id) {
		return Evaluation{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	ev, err := scanEvaluation(s.pool.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
		}
		return Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	return ev, nil
}

// CreateAttempt serialises starts per (evaluation, learner) with a
// transaction-scoped advisory lock, then counts and inserts. The unique
// (evaluation_id, user_id, attempt_number) constraint backs the lock up.
func (s *PostgresStore) CreateAttempt(ctx context.Context, evaluationID, userID string, maxAttempts int, startedAt time.Time) (Attempt, error) {
	if !validID(evaluationID) {
		return Attempt{}, fmt.Errorf("evaluation %s: %w", evaluationID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Attempt{}, fmt.Errorf("begin attempt tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		evaluationID+":"+userID,
	); err != nil {
		return Attempt{}, fmt.Errorf("lock attempts: %w", err)
	}

	var used int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluation_attempts WHERE evaluation_id = $1::uuid AND user_id = $2`,
		evaluationID, userID,
	).Scan(&used); err != nil {
		return Attempt{}, fmt.Errorf("count attempts: %w", err)
	}
	if used >= maxAttempts {
		return Attempt{}, ErrAttemptQuotaExceeded
	}

	a, err := scanAttempt(tx.QueryRow(ctx,
		`INSERT INTO evaluation_attempts (evaluation_id, user_id, attempt_number, answers, started_at)
		 VALUES ($1::uuid, $2, $3, '{}'::jsonb, $4)
		 RETURNING `+attemptColumns,
		evaluationID, userID, used+1, startedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Attempt{}, ErrAttemptQuotaExceeded
		}
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Attempt{}, fmt.Errorf("commit attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	if !validID(id) {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM evaluation_attempts WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
		}
		return Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error {
	if !validID(attemptID) {
		return ErrInvalidAttemptState
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if answers == nil {
		answers = map[string]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE evaluation_attempts SET answers = $2::jsonb
		 WHERE id = $1::uuid AND submitted_at IS NULL`,
		attemptID, string(data),
	)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidAttemptState
	}
	return nil
}

func (s *PostgresStore) FinalizeAttempt(ctx context.Context, a Attempt) error {
	if !validID(a.ID) {
		return ErrInvalidAttemptState
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.SubmittedAt == nil {
		return ErrInvalidAttemptState
	}
	results, err := json.Marshal(nonNil(a.Results))
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE evaluation_attempts
		 SET submitted_at = $2, score = $3, total_points = $4, percentage = $5,
		     is_passed = $6, late_submission = $7, results = $8::jsonb
		 WHERE id = $1::uuid AND submitted_at IS NULL`,
		a.ID, *a.SubmittedAt, a.Score, a.TotalPoints, a.Percentage,
		a.IsPassed, a.LateSubmission, string(results),
	)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidAttemptState
	}
	return nil
}

func (s *PostgresStore) SetManualScore(ctx context.Context, attemptID, questionID string, points int) error {
	if !validID(attemptID) {
		return ErrInvalidAttemptState
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE evaluation_attempts
		 SET manual_scores = COALESCE(manual_scores, '{}'::jsonb) || jsonb_build_object($2::text, $3::int)
		 WHERE id = $1::uuid AND submitted_at IS NOT NULL`,
		attemptID, questionID, points,
	)
	if err != nil {
		return fmt.Errorf("set manual score: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidAttemptState
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, evaluationID string) ([]Attempt, error) {
	if !validID(evaluationID) {
		return []Attempt{}, nil
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM evaluation_attempts
		 WHERE evaluation_id = $1::uuid
		 ORDER BY user_id, attempt_number`,
		evaluationID,
	)
}

func (s *PostgresStore) ListUserAttempts(ctx context.Context, evaluationID, userID string) ([]Attempt, error) {
	if !validID(evaluationID) {
		return []Attempt{}, nil
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM evaluation_attempts
		 WHERE evaluation_id = $1::uuid AND user_id = $2
		 ORDER BY attempt_number`,
		evaluationID, userID,
	)
}

func (s *PostgresStore) queryAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func scanEvaluation(row pgx.Row) (Evaluation, error) {
	var ev Evaluation
	var questions []byte
	if err := row.Scan(
		&ev.ID,
		&ev.ProgramID,
		&ev.Title,
		&ev.Description,
		&questions,
		&ev.PassingScore,
		&ev.MaxAttempts,
		&ev.TimeLimitMinutes,
		&ev.Published,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		return Evaluation{}, err
	}
	ev.Questions = []Question{}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &ev.Questions); err != nil {
			return Evaluation{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	return ev, nil
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var a Attempt
	var answers, results, manual []byte
	var score, total, pct *int
	var passed, late *bool
	if err := row.Scan(
		&a.ID,
		&a.EvaluationID,
		&a.UserID,
		&a.AttemptNumber,
		&answers,
		&a.StartedAt,
		&a.SubmittedAt,
		&score,
		&total,
		&pct,
		&passed,
		&late,
		&results,
		&manual,
	); err != nil {
		return Attempt{}, err
	}
	a.Score = derefInt(score)
	a.TotalPoints = derefInt(total)
	a.Percentage = derefInt(pct)
	a.IsPassed = passed != nil && *passed
	a.LateSubmission = late != nil && *late

	a.Answers = map[string]string{}
	if err := decodeJSON(answers, &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("decode answers: %w", err)
	}
	if err := decodeJSON(results, &a.Results); err != nil {
		return Attempt{}, fmt.Errorf("decode results: %w", err)
	}
	if err := decodeJSON(manual, &a.ManualScores); err != nil {
		return Attempt{}, fmt.Errorf("decode manual scores: %w", err)
	}
	return a, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
