// Package catalog loads course documents from a directory of YAML files and
// fills the in-memory stores used when the server runs without PostgreSQL.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

// ErrDuplicateCourse is returned when two documents declare the same course.
var ErrDuplicateCourse = errors.New("duplicate course")

// document is the on-disk shape of one course file.
type document struct {
	curriculum.Course `yaml:",inline"`
	Evaluation        *evaluation.ConfigInput `yaml:"evaluation"`
	TPBatches         []tpbatch.BatchInput    `yaml:"tp_batches"`
	Records           records                 `yaml:"records"`
}

// records seeds learner activity, mostly for demos and local testing.
type records struct {
	Submissions []submissionDoc `yaml:"submissions"`
	Scores      []scoreDoc      `yaml:"scores"`
}

type submissionDoc struct {
	UserID      string     `yaml:"user_id"`
	ItemID      string     `yaml:"item_id"`
	Status      string     `yaml:"status"`
	Grade       *float64   `yaml:"grade"`
	SubmittedAt *time.Time `yaml:"submitted_at"`
}

type scoreDoc struct {
	UserID    string    `yaml:"user_id"`
	ItemID    string    `yaml:"item_id"`
	Score     float64   `yaml:"score"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Loader holds everything read from the catalog directory.
type Loader struct {
	rootDir     string
	courseIDs   []string
	Courses     *curriculum.MemoryStore
	Evaluations *evaluation.MemorySource
	Batches     *tpbatch.MemorySource
}

// NewLoader reads every *.yaml / *.yml file under rootDir. Files that are not
// valid YAML or carry no course id are skipped; a course whose evaluation
// configuration or TP batches are malformed fails the load.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:     rootDir,
		Courses:     curriculum.NewMemoryStore(),
		Evaluations: evaluation.NewMemorySource(),
		Batches:     tpbatch.NewMemorySource(),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "courses", len(l.courseIDs), "root", rootDir)
	return l, nil
}

// CourseIDs returns the loaded course IDs in sorted order.
func (l *Loader) CourseIDs() []string {
	return append([]string(nil), l.courseIDs...)
}

func (l *Loader) loadAll() error {
	err := filepath.WalkDir(l.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return l.loadCourse(path)
	})
	sort.Strings(l.courseIDs)
	return err
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if doc.ID == "" {
		return nil // Not a course file
	}
	for _, id := range l.courseIDs {
		if id == doc.ID {
			return fmt.Errorf("%s: course %s: %w", path, doc.ID, ErrDuplicateCourse)
		}
	}

	course, err := normalize(doc.Course)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var evalIn evaluation.ConfigInput
	if doc.Evaluation != nil {
		evalIn = *doc.Evaluation
	}
	cfg, err := evaluation.NewConfig(evalIn)
	if err != nil {
		return fmt.Errorf("%s: course %s: %w", path, course.ID, err)
	}
	l.Evaluations.Put(course.ID, cfg)

	for _, in := range doc.TPBatches {
		if in.CourseID == "" {
			in.CourseID = course.ID
		}
		b, err := tpbatch.NewBatch(in)
		if err != nil {
			return fmt.Errorf("%s: batch %s: %w", path, in.ID, err)
		}
		l.Batches.Put(b)
	}

	l.Courses.PutCourse(course)
	if err := l.seedRecords(course, doc.Records); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l.courseIDs = append(l.courseIDs, course.ID)
	return nil
}

// normalize fills parent IDs and checks item kinds.
func normalize(c curriculum.Course) (curriculum.Course, error) {
	for mi := range c.Modules {
		m := &c.Modules[mi]
		m.CourseID = c.ID
		for ii := range m.Items {
			it := &m.Items[ii]
			it.ModuleID = m.ID
			if !it.Kind.Valid() {
				return curriculum.Course{}, fmt.Errorf("item %s: unknown type %q", it.ID, it.Kind)
			}
		}
	}
	return c, nil
}

func (l *Loader) seedRecords(c curriculum.Course, r records) error {
	for _, s := range r.Submissions {
		if _, ok := c.FindItem(s.ItemID); !ok {
			return fmt.Errorf("submission for unknown item %s", s.ItemID)
		}
		status := curriculum.SubmissionStatus(s.Status)
		switch status {
		case "":
			status = curriculum.StatusSubmitted
		case curriculum.StatusDraft, curriculum.StatusSubmitted, curriculum.StatusGraded:
		default:
			return fmt.Errorf("submission for item %s: unknown status %q", s.ItemID, s.Status)
		}
		l.Courses.PutSubmission(curriculum.Submission{
			ID:          s.UserID + "/" + s.ItemID,
			UserID:      s.UserID,
			ItemID:      s.ItemID,
			Status:      status,
			Grade:       s.Grade,
			SubmittedAt: s.SubmittedAt,
		})
	}
	for _, sc := range r.Scores {
		if _, ok := c.FindItem(sc.ItemID); !ok {
			return fmt.Errorf("score for unknown item %s", sc.ItemID)
		}
		l.Courses.AddScore(curriculum.ScoreRecord{
			UserID:    sc.UserID,
			ItemID:    sc.ItemID,
			CourseID:  c.ID,
			Score:     sc.Score,
			CreatedAt: sc.CreatedAt,
		})
	}
	return nil
}
