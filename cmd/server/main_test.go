package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-formations/internal/api"
	"github.com/p-n-ai/pai-formations/internal/platform/config"
)

func testConfig(t *testing.T, catalogDir string) *config.Config {
	t.Helper()
	t.Setenv("LEARN_STORE", "memory")
	t.Setenv("LEARN_CACHE_URL", "")
	t.Setenv("LEARN_CURRICULUM_PATH", catalogDir)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	deps, cleanup, err := buildDeps(t.Context(), testConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("buildDeps() error = %v", err)
	}
	defer cleanup()
	mux := api.New(deps).Handler()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestBuildDeps_MemoryCatalog(t *testing.T) {
	dir := t.TempDir()
	course := `
id: c1
modules:
  - id: m1
    items:
      - id: ex1
        type: exercise
        published: true
records:
  submissions:
    - user_id: u1
      item_id: ex1
`
	if err := os.WriteFile(filepath.Join(dir, "c1.yaml"), []byte(course), 0o644); err != nil {
		t.Fatal(err)
	}

	deps, cleanup, err := buildDeps(t.Context(), testConfig(t, dir))
	if err != nil {
		t.Fatalf("buildDeps() error = %v", err)
	}
	defer cleanup()

	rec := httptest.NewRecorder()
	api.New(deps).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/c1/progress?user_id=u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"percent":100`) {
		t.Errorf("body = %s, want 100 percent", rec.Body.String())
	}
}

func TestBuildDeps_InvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	bad := "id: c1\nevaluation:\n  items:\n    - item_id: x\n      weight: -1\n"
	if err := os.WriteFile(filepath.Join(dir, "c1.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := buildDeps(t.Context(), testConfig(t, dir)); err == nil {
		t.Error("buildDeps() should fail on an invalid catalog")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		lc        config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, true},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, false},
		{"unknown level", config.LogConfig{Level: "chatty", Format: "json"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.lc)
			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v (%q)", got, tt.wantJSON, out)
			}
		})
	}
}
