package evaluation

import (
	"fmt"

	"github.com/p-n-ai/pai-formations/internal/platform/metrics"
)

// Status is the outcome of scoring.
type Status string

const (
	StatusPassed       Status = "passed"
	StatusFailed       Status = "failed"
	StatusUnconfigured Status = "unconfigured"
)

// Verdict is the result of scoring one learner against a configuration.
type Verdict struct {
	Status       Status  `json:"status"`
	Passed       bool    `json:"passed"`
	Aggregate    float64 `json:"aggregate"`
	PassingScore int     `json:"passing_score"`
	Answered     int     `json:"answered"`
	TotalWeight  int     `json:"total_weight"`
	Reason       string  `json:"reason"`
	FailedGate   string  `json:"failed_gate,omitempty"`
}

// Score computes the weighted verdict. outcomes maps an entry's RefID to the
// learner's 0..100 result; a missing entry counts as 0 but still carries its
// weight. Threshold gates are checked first and fail the verdict on their own.
func Score(cfg Config, outcomes map[string]float64) (Verdict, error) {
	if !cfg.valid {
		return Verdict{}, &ConfigError{Index: -1, Reason: "configuration was not validated"}
	}

	v := Verdict{PassingScore: cfg.passingScore}
	if len(cfg.entries) == 0 {
		v.Status = StatusUnconfigured
		v.Reason = "no evaluation entries configured"
		return record(v), nil
	}

	for _, e := range cfg.entries {
		if _, ok := outcomes[e.RefID]; ok {
			v.Answered++
		}
	}

	for _, e := range cfg.entries {
		if e.Threshold == nil {
			continue
		}
		score := clamp(outcomes[e.RefID])
		if score < float64(*e.Threshold) {
			v.Status = StatusFailed
			v.FailedGate = e.RefID
			v.Reason = fmt.Sprintf("%s scored %.1f, below its threshold of %d", label(e), score, *e.Threshold)
			return record(v), nil
		}
	}

	var weighted float64
	for _, e := range cfg.entries {
		weighted += clamp(outcomes[e.RefID]) * float64(e.Weight)
		v.TotalWeight += e.Weight
	}
	if v.TotalWeight == 0 {
		v.Status = StatusUnconfigured
		v.Reason = "total weight is zero"
		return record(v), nil
	}

	v.Aggregate = weighted / float64(v.TotalWeight)
	v.Passed = v.Aggregate >= float64(cfg.passingScore)
	if v.Passed {
		v.Status = StatusPassed
		v.Reason = fmt.Sprintf("weighted score %.1f meets passing score %d", v.Aggregate, cfg.passingScore)
	} else {
		v.Status = StatusFailed
		v.Reason = fmt.Sprintf("weighted score %.1f below passing score %d", v.Aggregate, cfg.passingScore)
	}
	return record(v), nil
}

func record(v Verdict) Verdict {
	metrics.Verdicts.WithLabelValues(string(v.Status)).Inc()
	return v
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

func label(e Entry) string {
	if e.Title != "" {
		return e.Title
	}
	return e.RefID
}
