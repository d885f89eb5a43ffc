package tpbatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned for an unknown batch.
var ErrNotFound = errors.New("not found")

// Source returns validated batches by ID.
type Source interface {
	Batch(ctx context.Context, id string) (Batch, error)
}

// MemorySource serves batches loaded from the YAML catalog.
type MemorySource struct {
	mu      sync.RWMutex
	batches map[string]Batch
}

func NewMemorySource() *MemorySource {
	return &MemorySource{batches: make(map[string]Batch)}
}

func (s *MemorySource) Put(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.id] = b
}

func (s *MemorySource) Batch(_ context.Context, id string) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("tp batch %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// PostgresSource reads tp_batches and tp_batch_items and validates them.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Batch(ctx context.Context, id string) (Batch, error) {
	if uuid.Validate(id) != nil {
		return Batch{}, fmt.Errorf("tp batch %s: %w", id, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	in := BatchInput{ID: id}
	var courseID *string
	err := s.pool.QueryRow(ctx,
		`SELECT course_id::text, title, sequential_order FROM tp_batches WHERE id = $1::uuid`,
		id,
	).Scan(&courseID, &in.Title, &in.Sequential)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("tp batch %s: %w", id, ErrNotFound)
		}
		return Batch{}, fmt.Errorf("get tp batch: %w", err)
	}
	if courseID != nil {
		in.CourseID = *courseID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id::text, position, is_required, COALESCE(prerequisite_item_id::text, '')
		 FROM tp_batch_items
		 WHERE tp_batch_id = $1::uuid
		 ORDER BY position ASC`,
		id,
	)
	if err != nil {
		return Batch{}, fmt.Errorf("query tp batch items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EntryInput
		if err := rows.Scan(&e.ItemID, &e.Position, &e.Required, &e.PrerequisiteItemID); err != nil {
			return Batch{}, fmt.Errorf("scan tp batch item: %w", err)
		}
		in.Items = append(in.Items, e)
	}
	if err := rows.Err(); err != nil {
		return Batch{}, fmt.Errorf("iterate tp batch items: %w", err)
	}

	return NewBatch(in)
}
