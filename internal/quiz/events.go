package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Attempt lifecycle event types.
const (
	EventAttemptStarted   = "attempt_started"
	EventAttemptRejected  = "attempt_rejected"
	EventAnswersSaved     = "answers_saved"
	EventAttemptSubmitted = "attempt_submitted"
	EventAnswerReviewed   = "answer_reviewed"
)

// Event is an audit record of an attempt transition.
type Event struct {
	EvaluationID string
	AttemptID    string
	UserID       string
	EventType    string
	Data         map[string]any
	CreatedAt    time.Time
}

// EventLogger records attempt events.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the attempt_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.EvaluationID == "" {
		return fmt.Errorf("evaluation_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO attempt_events (evaluation_id, attempt_id, user_id, event_type, data, created_at)
		 VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, $4, $5::jsonb, $6)`,
		event.EvaluationID,
		event.AttemptID,
		event.UserID,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert attempt event: %w", err)
	}

	slog.Debug("attempt event logged",
		"type", event.EventType,
		"evaluation_id", event.EvaluationID,
		"attempt_id", event.AttemptID,
		"user_id", event.UserID,
	)
	return nil
}
