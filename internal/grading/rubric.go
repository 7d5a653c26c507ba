package grading

import (
	"fmt"
	"strings"
)

// Rubric breaks an essay's points into named criteria a reviewer awards separately.
type Rubric struct {
	Criteria []Criterion `json:"criteria" validate:"dive"`
	Max      float64     `json:"max_points" validate:"gte=0"`
}

type Criterion struct {
	Key       string  `json:"key" validate:"required"`
	Desc      string  `json:"desc,omitempty"`
	MaxPoints float64 `json:"max_points" validate:"gte=0"`
}

// ScoreRubric sums reviewer awards, clamping each criterion to [0, MaxPoints]
// and the total to Max (when set). Unknown keys in awarded are ignored.
func ScoreRubric(r Rubric, awarded map[string]float64) (float64, string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := clamp(awarded[c.Key], 0, c.MaxPoints)
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f", c.Key, v))
	}
	if r.Max > 0 && total > r.Max {
		total = r.Max
	}
	return total, strings.Join(notes, " ")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
