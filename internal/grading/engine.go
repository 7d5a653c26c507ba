package grading

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Question types understood by the default grader.
const (
	TypeMultipleChoice      = "multiple_choice"
	TypeTrueFalse           = "true_false"
	TypeShortAnswer         = "short_answer"
	TypeShortAnswerKeywords = "short_answer_keywords"
	TypeEssay               = "essay"
)

// Types lists every built-in question type.
var Types = []string{
	TypeMultipleChoice,
	TypeTrueFalse,
	TypeShortAnswer,
	TypeShortAnswerKeywords,
	TypeEssay,
}

// Feedback strings shared by the strategies.
const (
	FeedbackCorrect   = "Correct"
	FeedbackIncorrect = "Incorrect"
	FeedbackBlank     = "blank"
	FeedbackSubmitted = "submitted"
	FeedbackNoKey     = "no answer key"
)

// Choice is one selectable option of a multiple_choice or true_false question.
type Choice struct {
	ID       string
	Correct  bool
	Feedback string
}

// Q is the answer-key view of a question needed for grading.
type Q struct {
	Type   string
	Points float64

	Choices          []Choice   // multiple_choice, true_false
	Accepted         []string   // short_answer
	KeywordGroups    [][]string // short_answer_keywords
	RequiredKeywords int        // short_answer_keywords; <=0 means every group
}

// Result is the outcome of grading a single response.
type Result struct {
	PointsEarned float64
	MaxPoints    float64
	IsCorrect    bool
	Feedback     string
	NeedsManual  bool
}

// Strategy grades a single question. Implementations are total: malformed
// or missing input degrades to a zero-point result, never an error.
type Strategy interface {
	Grade(q Q, response any) Result
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(q Q, response any) Result

func (f StrategyFunc) Grade(q Q, response any) Result { return f(q, response) }

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, response any) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, response any) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: "no strategy available"}
	}
	return s.Grade(q, response)
}

type Option func(*config)

type config struct {
	overrides map[string]Strategy
}

// WithStrategy installs or replaces the strategy used for a question type.
func WithStrategy(typ string, s Strategy) Option {
	return func(c *config) { c.overrides[typ] = s }
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{overrides: map[string]Strategy{}}
	for _, o := range opts {
		o(cfg)
	}
	strategies := map[string]Strategy{
		TypeMultipleChoice:      StrategyFunc(gradeChoice),
		TypeTrueFalse:           StrategyFunc(gradeChoice),
		TypeShortAnswer:         StrategyFunc(gradeShortAnswer),
		TypeShortAnswerKeywords: StrategyFunc(gradeKeywords),
		TypeEssay:               StrategyFunc(gradeEssay),
	}
	for typ, s := range cfg.overrides {
		strategies[typ] = s
	}
	return &defaultGrader{strategies: strategies}
}

// IsKnownType reports whether typ is one of the built-in question types.
func IsKnownType(typ string) bool {
	for _, t := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// IsBlank reports whether a submitted value carries no answer.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case json.RawMessage:
		s := strings.TrimSpace(string(t))
		return s == "" || s == "null" || s == `""` || s == "[]" || s == "{}"
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// asText coerces a decoded JSON value into the string a strategy compares.
func asText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		// {"option_id": "..."} or {"text": "..."} structured answers
		for _, k := range []string{"option_id", "text", "value"} {
			if s, ok := t[k]; ok {
				return asText(s)
			}
		}
		return "", false
	default:
		return "", false
	}
}
