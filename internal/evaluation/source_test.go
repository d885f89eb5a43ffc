package evaluation_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-formations/internal/evaluation"
)

func TestMemorySource(t *testing.T) {
	src := evaluation.NewMemorySource()
	src.Put("c1", mustConfig(t, evaluation.ConfigInput{
		Items: []evaluation.EntryInput{{ItemID: "a", Weight: 2}},
	}))

	tests := []struct {
		name       string
		courseID   string
		wantWeight int
		wantStatus evaluation.Status
	}{
		{"stored config", "c1", 2, evaluation.StatusFailed},
		{"no config stored", "c2", 0, evaluation.StatusUnconfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := src.Config(t.Context(), tt.courseID)
			if err != nil {
				t.Fatalf("Config() error = %v", err)
			}
			if got := cfg.TotalWeight(); got != tt.wantWeight {
				t.Errorf("TotalWeight() = %d, want %d", got, tt.wantWeight)
			}
			if got := cfg.PassingScore(); got != evaluation.DefaultPassingScore {
				t.Errorf("PassingScore() = %d, want %d", got, evaluation.DefaultPassingScore)
			}
			v, err := evaluation.Score(cfg, nil)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if v.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", v.Status, tt.wantStatus)
			}
		})
	}
}

func TestPostgresSource_MalformedCourseID(t *testing.T) {
	src := evaluation.NewPostgresSource(new(pgxpool.Pool))
	if _, err := src.Config(t.Context(), "intro-go"); !errors.Is(err, evaluation.ErrNotFound) {
		t.Errorf("Config() error = %v, want ErrNotFound", err)
	}
}
