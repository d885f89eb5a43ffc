package curriculum

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDecodeAnswer(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name     string
		raw      string
		wantKeys int
		wantLog  bool
	}{
		{"empty", "", 0, false},
		{"object", `{"choice":"B","notes":"ok"}`, 2, false},
		{"null", "null", 0, false},
		{"not an object", `["a"]`, 0, true},
		{"truncated", `{"choice":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			got := decodeAnswer("s1", []byte(tt.raw))
			if len(got) != tt.wantKeys {
				t.Errorf("decodeAnswer() = %v, want %d keys", got, tt.wantKeys)
			}
			logged := strings.Contains(buf.String(), "ignoring unreadable submission answer")
			if logged != tt.wantLog {
				t.Errorf("warning logged = %v, want %v (%q)", logged, tt.wantLog, buf.String())
			}
			if tt.wantLog && !strings.Contains(buf.String(), "submission_id=s1") {
				t.Errorf("log %q missing submission id", buf.String())
			}
		})
	}
}
