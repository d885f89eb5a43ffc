package curriculum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresReader reads courses and learner records from PostgreSQL.
type PostgresReader struct {
	pool *pgxpool.Pool
}

// NewPostgresReader creates a PostgreSQL-backed Reader.
func NewPostgresReader(pool *pgxpool.Pool) (*PostgresReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresReader{pool: pool}, nil
}

func (r *PostgresReader) GetCourse(ctx context.Context, courseID string) (Course, error) {
	if uuid.Validate(courseID) != nil {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c := Course{ID: courseID}
	err := r.pool.QueryRow(ctx,
		`SELECT title FROM courses WHERE id = $1::uuid`,
		courseID,
	).Scan(&c.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
		}
		return Course{}, fmt.Errorf("get course: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT m.id::text, m.title, m.position,
		        i.id::text, i.title, i.type, i.position, i.published
		 FROM modules m
		 LEFT JOIN items i ON i.module_id = m.id
		 WHERE m.course_id = $1::uuid
		 ORDER BY m.position ASC, i.position ASC`,
		courseID,
	)
	if err != nil {
		return Course{}, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	index := map[string]int{}
	for rows.Next() {
		var m Module
		var itemID, itemTitle, itemType *string
		var itemPos *int
		var published *bool
		if err := rows.Scan(&m.ID, &m.Title, &m.Position,
			&itemID, &itemTitle, &itemType, &itemPos, &published); err != nil {
			return Course{}, fmt.Errorf("scan module: %w", err)
		}
		idx, ok := index[m.ID]
		if !ok {
			m.CourseID = courseID
			c.Modules = append(c.Modules, m)
			idx = len(c.Modules) - 1
			index[m.ID] = idx
		}
		if itemID == nil {
			continue
		}
		c.Modules[idx].Items = append(c.Modules[idx].Items, Item{
			ID:        *itemID,
			ModuleID:  m.ID,
			Title:     deref(itemTitle),
			Kind:      ItemKind(deref(itemType)),
			Position:  derefInt(itemPos),
			Published: published != nil && *published,
		})
	}
	if err := rows.Err(); err != nil {
		return Course{}, fmt.Errorf("iterate modules: %w", err)
	}
	return c, nil
}

func (r *PostgresReader) ListSubmissions(ctx context.Context, userID string, itemIDs []string) ([]Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, item_id::text, COALESCE(answer_text, ''), answer_json,
		        COALESCE(file_path, ''), status, grade, submitted_at, graded_at
		 FROM submissions
		 WHERE user_id = $1 AND item_id::text = ANY($2)`,
		userID,
		itemIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var sub Submission
		var answerJSON []byte
		var status string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ItemID, &sub.AnswerText, &answerJSON,
			&sub.FilePath, &status, &sub.Grade, &sub.SubmittedAt, &sub.GradedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Status = SubmissionStatus(status)
		sub.AnswerJSON = decodeAnswer(sub.ID, answerJSON)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *PostgresReader) ListScores(ctx context.Context, userID, courseID string) ([]ScoreRecord, error) {
	if uuid.Validate(courseID) != nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT user_id, item_id::text, course_id::text, score, created_at
		 FROM game_scores
		 WHERE user_id = $1 AND course_id = $2::uuid
		 ORDER BY created_at ASC`,
		userID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		var sc ScoreRecord
		if err := rows.Scan(&sc.UserID, &sc.ItemID, &sc.CourseID, &sc.Score, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return out, nil
}

// decodeAnswer reads a structured answer. An unreadable one is logged and
// dropped; completion depends on status, not on the answer body.
func decodeAnswer(submissionID string, raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Warn("ignoring unreadable submission answer",
			"submission_id", submissionID,
			"error", err,
		)
		return nil
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
