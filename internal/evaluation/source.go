package evaluation

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

// ErrNotFound is returned when no course exists for a config lookup.
var ErrNotFound = errors.New("not found")

// Source returns the validated configuration of a course.
type Source interface {
	Config(ctx context.Context, courseID string) (Config, error)
}

// MemorySource serves configurations loaded from the YAML catalog.
type MemorySource struct {
	mu      sync.RWMutex
	configs map[string]Config
}

func NewMemorySource() *MemorySource {
	return &MemorySource{configs: make(map[string]Config)}
}

// Put stores the configuration of a course.
func (s *MemorySource) Put(courseID string, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[courseID] = cfg
}

// Config returns the stored configuration. A course without one is
// unconfigured, matching a NULL evaluations_config in PostgreSQL; callers
// resolve the course itself first.
func (s *MemorySource) Config(_ context.Context, courseID string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[courseID]; ok {
		return cfg, nil
	}
	return Config{passingScore: DefaultPassingScore, valid: true}, nil
}

// PostgresSource reads courses.evaluations_config and validates it.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Config(ctx context.Context, courseID string) (Config, error) {
	if uuid.Validate(courseID) != nil {
		return Config{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT evaluations_config FROM courses WHERE id = $1::uuid`,
		courseID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
		}
		return Config{}, fmt.Errorf("get evaluations config: %w", err)
	}
	return ParseDocument(raw)
}
