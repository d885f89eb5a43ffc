package quiz_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-formations/internal/quiz"
)

func TestExportResults(t *testing.T) {
	at := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	attempts := []quiz.Attempt{
		submitted("alice", 1, 80, true, at),
		{UserID: "bob", AttemptNumber: 1, StartedAt: at},
	}
	ev := quiz.Evaluation{Title: "Final", PassingScore: 60, MaxAttempts: 2}

	var buf bytes.Buffer
	if err := quiz.ExportResults(&buf, ev, attempts, quiz.Summarize("ev", attempts)); err != nil {
		t.Fatalf("ExportResults() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Attempts")
	if err != nil {
		t.Fatalf("GetRows(Attempts) error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("attempt rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != "alice" || rows[1][6] != "80" || rows[1][8] != "yes" {
		t.Errorf("alice row = %v", rows[1])
	}
	if rows[2][3] != "in progress" {
		t.Errorf("bob submitted cell = %q, want in progress", rows[2][3])
	}

	participants, err := f.GetCellValue("Summary", "B5")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if participants != "1" {
		t.Errorf("participants = %q, want 1", participants)
	}
}
