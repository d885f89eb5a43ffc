package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-formations/internal/api"
	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/quiz"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

func TestComputeVerdict(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult evaluation.Status
		wantGate   string
	}{
		{
			name:       "weighted pass at boundary",
			body:       `{"config":{"passingScore":50,"items":[{"itemId":"a","weight":1},{"itemId":"b","weight":3}]},"outcomes":{"a":20,"b":60}}`,
			wantStatus: http.StatusOK,
			wantResult: evaluation.StatusPassed,
		},
		{
			name:       "threshold gate fails",
			body:       `{"config":{"items":[{"itemId":"a","weight":1,"threshold":30},{"itemId":"b","weight":3}]},"outcomes":{"a":20,"b":100}}`,
			wantStatus: http.StatusOK,
			wantResult: evaluation.StatusFailed,
			wantGate:   "a",
		},
		{
			name:       "null config is unconfigured",
			body:       `{"config":null}`,
			wantStatus: http.StatusOK,
			wantResult: evaluation.StatusUnconfigured,
		},
		{
			name:       "zero weight",
			body:       `{"config":{"items":[{"itemId":"a","weight":0}]}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing config",
			body:       `{"outcomes":{"a":10}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"config":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/evaluation/verdict", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			v := decodeBody[evaluation.Verdict](t, rec)
			if v.Status != tt.wantResult {
				t.Errorf("Status = %s, want %s", v.Status, tt.wantResult)
			}
			if v.FailedGate != tt.wantGate {
				t.Errorf("FailedGate = %q, want %q", v.FailedGate, tt.wantGate)
			}
		})
	}
}

type unlockBody struct {
	BatchID       string `json:"batch_id"`
	RequiredDone  int    `json:"required_done"`
	RequiredTotal int    `json:"required_total"`
	Items         []struct {
		ItemID    string  `json:"item_id"`
		Unlocked  bool    `json:"unlocked"`
		BlockedBy *string `json:"blocked_by"`
	} `json:"items"`
}

func TestComputeUnlock(t *testing.T) {
	f := newFixture(t)

	body := `{"batch":{"id":"b","sequential_order":true,"items":[
		{"item_id":"C","position":2,"is_required":true,"prerequisite_item_id":"B"},
		{"item_id":"A","position":0,"is_required":true},
		{"item_id":"B","position":1,"prerequisite_item_id":"A"}]},
		"completed":{"A":true}}`
	rec := f.do(t, http.MethodPost, "/tp-batches/unlock", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[unlockBody](t, rec)
	if len(got.Items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(got.Items))
	}
	if !got.Items[1].Unlocked || got.Items[1].ItemID != "B" {
		t.Errorf("B = %+v, want unlocked", got.Items[1])
	}
	if got.Items[2].Unlocked || got.Items[2].BlockedBy == nil || *got.Items[2].BlockedBy != "B" {
		t.Errorf("C = %+v, want blocked by B", got.Items[2])
	}
	if got.RequiredDone != 1 || got.RequiredTotal != 2 {
		t.Errorf("required = %d/%d, want 1/2", got.RequiredDone, got.RequiredTotal)
	}

	bad := `{"batch":{"items":[{"item_id":"A","position":0,"prerequisite_item_id":"B"},{"item_id":"B","position":1}]}}`
	if rec := f.do(t, http.MethodPost, "/tp-batches/unlock", bad, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("forward prerequisite status = %d, want 422", rec.Code)
	}
}

func TestComputeProgress(t *testing.T) {
	f := newFixture(t)

	body := `{"user_id":"u1",
		"course":{"id":"c9","modules":[{"id":"m1","items":[
			{"id":"ex","type":"exercise","published":true},
			{"id":"g","type":"game","published":true},
			{"id":"d","type":"document","published":true}]}]},
		"submissions":[{"user_id":"u1","item_id":"ex","status":"submitted"}],
		"scores":[{"user_id":"u1","item_id":"g","score":40},{"user_id":"u1","item_id":"g","score":70}]}`
	rec := f.do(t, http.MethodPost, "/progress/course", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	cp := decodeBody[curriculum.CourseProgress](t, rec)
	if cp.CompletedCount != 2 || cp.TotalCount != 3 || cp.Percent != 67 {
		t.Errorf("progress = %+v, want 2/3 (67%%)", cp.Progress)
	}
	if sc := cp.Modules[0].Items[1].Scores; sc == nil || sc.Best != 70 {
		t.Errorf("game scores = %+v, want best 70", sc)
	}

	rec = f.do(t, http.MethodPost, "/progress/course", `{"course":{"id":"c9"}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user status = %d, want 400", rec.Code)
	}
	if e := decodeBody[errorBody](t, rec); e.Fields["user_id"] != "required" {
		t.Errorf("fields = %v, want user_id: required", e.Fields)
	}
}

func TestCourseProgress_ETag(t *testing.T) {
	f := newFixture(t)
	user := map[string]string{"X-User-ID": "u1"}

	rec := f.do(t, http.MethodGet, "/courses/c1/progress", "", user)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag header missing")
	}

	rec = f.do(t, http.MethodGet, "/courses/c1/progress", "", map[string]string{"X-User-ID": "u1", "If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Errorf("unchanged status = %d, want 304", rec.Code)
	}

	f.records.PutSubmission(curriculum.Submission{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusSubmitted})
	rec = f.do(t, http.MethodGet, "/courses/c1/progress?user_id=u1", "", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusOK {
		t.Fatalf("changed status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("ETag") == etag {
		t.Error("ETag should change after a new submission")
	}
	if cp := decodeBody[curriculum.CourseProgress](t, rec); cp.CompletedCount != 1 {
		t.Errorf("CompletedCount = %d, want 1", cp.CompletedCount)
	}
}

func TestCourseRoutes_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		path       string
		header     map[string]string
		wantStatus int
	}{
		{"progress without user", "/courses/c1/progress", nil, http.StatusBadRequest},
		{"progress unknown course", "/courses/nope/progress", map[string]string{"X-User-ID": "u1"}, http.StatusNotFound},
		{"verdict unknown course", "/courses/nope/verdict?user_id=u1", nil, http.StatusNotFound},
		{"unlock unknown batch", "/tp-batches/nope/unlock?user_id=u1", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, "", tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestCourseVerdict_WithoutConfigIsUnconfigured(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/courses/c1/verdict?user_id=u1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if v := decodeBody[evaluation.Verdict](t, rec); v.Status != evaluation.StatusUnconfigured {
		t.Errorf("Status = %s, want %s", v.Status, evaluation.StatusUnconfigured)
	}
}

func TestCourseVerdict_CombinesSources(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ev, err := f.engine.CreateEvaluation(ctx, quiz.EvaluationInput{Title: "Final"})
	if err != nil {
		t.Fatalf("CreateEvaluation() error = %v", err)
	}
	if _, err := f.engine.AddQuestion(ctx, ev.ID, quiz.Question{
		ID: "q1", Prompt: "2+2", Type: quiz.MultipleChoice, Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 1,
	}); err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}
	if _, err := f.engine.Publish(ctx, ev.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	a, err := f.engine.StartAttempt(ctx, ev.ID, "u1")
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}
	if _, err := f.engine.SaveAnswers(ctx, a.ID, "u1", map[string]string{"q1": "4"}); err != nil {
		t.Fatalf("SaveAnswers() error = %v", err)
	}
	if _, err := f.engine.SubmitAttempt(ctx, a.ID, "u1"); err != nil {
		t.Fatalf("SubmitAttempt() error = %v", err)
	}

	grade := 40.0
	f.records.PutSubmission(curriculum.Submission{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusGraded, Grade: &grade})

	cfg, err := evaluation.NewConfig(evaluation.ConfigInput{Items: []evaluation.EntryInput{
		{ItemID: "ex1", Weight: 1},
		{ItemID: ev.ID, Weight: 1},
	}})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	f.configs.Put("c1", cfg)

	rec := f.do(t, http.MethodGet, "/courses/c1/verdict", "", map[string]string{"X-User-ID": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	v := decodeBody[evaluation.Verdict](t, rec)
	// (40 + 100) / 2 = 70 against the default passing score of 60.
	if v.Status != evaluation.StatusPassed || v.Aggregate != 70 || v.Answered != 2 {
		t.Errorf("verdict = %+v, want passed with aggregate 70 and 2 answered", v)
	}
}

func TestBatchUnlock_UsesCourseCompletion(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/tp-batches/b1/unlock?user_id=u1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[unlockBody](t, rec)
	if got.BatchID != "b1" || got.Items[1].Unlocked {
		t.Errorf("before submission = %+v, want tp2 locked", got)
	}

	f.records.PutSubmission(curriculum.Submission{UserID: "u1", ItemID: "tp1", Status: curriculum.StatusSubmitted})
	got = decodeBody[unlockBody](t, f.do(t, http.MethodGet, "/tp-batches/b1/unlock?user_id=u1", "", nil))
	if !got.Items[1].Unlocked || got.RequiredDone != 1 {
		t.Errorf("after submission = %+v, want tp2 unlocked and 1 required done", got)
	}
}

func TestPostgresStores_MalformedIDs(t *testing.T) {
	pool := new(pgxpool.Pool)
	reader, err := curriculum.NewPostgresReader(pool)
	if err != nil {
		t.Fatalf("NewPostgresReader() error = %v", err)
	}
	store, err := quiz.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	handler := api.New(api.Deps{
		Tracker:     curriculum.NewTracker(reader),
		Evaluations: evaluation.NewPostgresSource(pool),
		Batches:     tpbatch.NewPostgresSource(pool),
		Quiz:        quiz.NewEngine(quiz.EngineConfig{Store: store, Events: quiz.NewMemoryEventLogger()}),
	}).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"save answers", http.MethodPut, "/attempts/not-a-uuid/answers", `{"answers":{"q1":"A"}}`, http.StatusConflict},
		{"submit", http.MethodPost, "/attempts/x/submit", "", http.StatusConflict},
		{"start attempt", http.MethodPost, "/evaluations/x/attempts", "", http.StatusNotFound},
		{"evaluation", http.MethodGet, "/evaluations/x", "", http.StatusNotFound},
		{"course progress", http.MethodGet, "/courses/intro-go/progress", "", http.StatusNotFound},
		{"course verdict", http.MethodGet, "/courses/intro-go/verdict", "", http.StatusNotFound},
		{"batch unlock", http.MethodGet, "/tp-batches/labs/unlock", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("X-User-ID", "u1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}
