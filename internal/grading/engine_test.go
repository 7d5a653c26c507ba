package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func choiceQ(typ string) Q {
	return Q{
		Type:   typ,
		Points: 5,
		Choices: []Choice{
			{ID: "a", Correct: false},
			{ID: "b", Correct: true},
			{ID: "c", Correct: false, Feedback: "close, but no"},
		},
	}
}

func TestGradeChoice(t *testing.T) {
	g := NewDefaultGrader()

	tests := []struct {
		name     string
		q        Q
		response any
		want     Result
	}{
		{
			name:     "correct option",
			q:        choiceQ(TypeMultipleChoice),
			response: "b",
			want:     Result{PointsEarned: 5, MaxPoints: 5, IsCorrect: true, Feedback: FeedbackCorrect},
		},
		{
			name:     "wrong option default feedback",
			q:        choiceQ(TypeMultipleChoice),
			response: "a",
			want:     Result{MaxPoints: 5, Feedback: FeedbackIncorrect},
		},
		{
			name:     "wrong option stored feedback",
			q:        choiceQ(TypeMultipleChoice),
			response: "c",
			want:     Result{MaxPoints: 5, Feedback: "close, but no"},
		},
		{
			name:     "unknown option",
			q:        choiceQ(TypeTrueFalse),
			response: "zzz",
			want:     Result{MaxPoints: 5, Feedback: FeedbackIncorrect},
		},
		{
			name:     "absent selection",
			q:        choiceQ(TypeTrueFalse),
			response: nil,
			want:     Result{MaxPoints: 5, Feedback: FeedbackBlank},
		},
		{
			name:     "structured selection",
			q:        choiceQ(TypeMultipleChoice),
			response: map[string]any{"option_id": "b"},
			want:     Result{PointsEarned: 5, MaxPoints: 5, IsCorrect: true, Feedback: FeedbackCorrect},
		},
		{
			name:     "malformed selection",
			q:        choiceQ(TypeMultipleChoice),
			response: []any{"b", "c"},
			want:     Result{MaxPoints: 5, Feedback: FeedbackIncorrect},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Grade(tt.q, tt.response))
		})
	}
}

func TestGradeTrueFalseBoolean(t *testing.T) {
	q := Q{Type: TypeTrueFalse, Points: 2, Choices: []Choice{{ID: "true", Correct: true}, {ID: "false"}}}
	res := NewDefaultGrader().Grade(q, true)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, 2.0, res.PointsEarned)
}

func TestGradeShortAnswer(t *testing.T) {
	q := Q{Type: TypeShortAnswer, Points: 4, Accepted: []string{"Paris", "City of Paris"}}
	g := NewDefaultGrader()

	res := g.Grade(q, "  PARIS ")
	assert.Equal(t, 4.0, res.PointsEarned)
	assert.True(t, res.IsCorrect)

	res = g.Grade(q, "city   of PARIS")
	assert.True(t, res.IsCorrect)

	wrong := g.Grade(q, "Lyon")
	blank := g.Grade(q, "   ")
	assert.Zero(t, wrong.PointsEarned)
	assert.Zero(t, blank.PointsEarned)
	assert.False(t, wrong.IsCorrect)
	assert.False(t, blank.IsCorrect)
	assert.Equal(t, FeedbackIncorrect, wrong.Feedback)
	assert.Equal(t, FeedbackBlank, blank.Feedback)
	assert.NotEqual(t, wrong.Feedback, blank.Feedback)
}

func TestShortAnswerKeepsPunctuation(t *testing.T) {
	g := NewDefaultGrader()
	tests := []struct {
		name     string
		accepted string
		answer   string
		correct  bool
	}{
		{"sign differs", "-5", "5", false},
		{"sign matches", "-5", " -5 ", true},
		{"decimal point dropped", "3.14", "314", false},
		{"decimal point kept", "3.14", "3.14", true},
		{"trailing period", "Paris", "paris.", false},
		{"apostrophe", "O'Brien", "obrien", false},
		{"case and spacing only", "New  York", "new york", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := g.Grade(Q{Type: TypeShortAnswer, Points: 5, Accepted: []string{tc.accepted}}, tc.answer)
			assert.Equal(t, tc.correct, res.IsCorrect)
			if tc.correct {
				assert.Equal(t, 5.0, res.PointsEarned)
			} else {
				assert.Zero(t, res.PointsEarned)
			}
		})
	}
}

func TestKeywordWithPunctuation(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: TypeShortAnswerKeywords, Points: 10, KeywordGroups: [][]string{{"U.S."}}}

	res := g.Grade(q, "because business matters")
	assert.Zero(t, res.PointsEarned)
	assert.False(t, res.IsCorrect)

	res = g.Grade(q, "The u.s. constitution")
	assert.Equal(t, 10.0, res.PointsEarned)
	assert.True(t, res.IsCorrect)
}

func TestGradeKeywords(t *testing.T) {
	q := Q{
		Type:   TypeShortAnswerKeywords,
		Points: 20,
		KeywordGroups: [][]string{
			{"photosynthesis"},
			{"chlorophyll", "chloroplast"},
			{"sunlight", "light energy"},
			{"glucose", "sugar"},
		},
		RequiredKeywords: 4,
	}
	g := NewDefaultGrader()

	res := g.Grade(q, "Plants use CHLOROPHYLL to make Sugar.")
	assert.Equal(t, 10.0, res.PointsEarned)
	assert.False(t, res.IsCorrect)
	assert.False(t, res.NeedsManual)
	assert.Equal(t, "keyword groups matched: 2/4", res.Feedback)

	res = g.Grade(q, "Photosynthesis: chloroplasts turn light energy into glucose")
	assert.Equal(t, 20.0, res.PointsEarned)
	assert.True(t, res.IsCorrect)

	q.RequiredKeywords = 2
	res = g.Grade(q, "chlorophyll and sugar")
	assert.Equal(t, 20.0, res.PointsEarned)
	assert.True(t, res.IsCorrect)

	q.RequiredKeywords = 4
	q.Points = 10
	res = g.Grade(q, "sugar")
	assert.Equal(t, 2.0, res.PointsEarned, "floor(10*1/4)")

	res = g.Grade(q, "")
	assert.Zero(t, res.PointsEarned)
	assert.Equal(t, FeedbackBlank, res.Feedback)

	res = g.Grade(Q{Type: TypeShortAnswerKeywords, Points: 3}, "anything")
	assert.Zero(t, res.PointsEarned)
	assert.Equal(t, FeedbackNoKey, res.Feedback)
}

func TestGradeEssay(t *testing.T) {
	q := Q{Type: TypeEssay, Points: 30}
	g := NewDefaultGrader()

	sub := g.Grade(q, "A long thoughtful answer")
	assert.Equal(t, Result{MaxPoints: 30, NeedsManual: true, Feedback: FeedbackSubmitted}, sub)

	blank := g.Grade(q, "")
	assert.Equal(t, Result{MaxPoints: 30, NeedsManual: true, Feedback: FeedbackBlank}, blank)

	assert.True(t, g.Grade(q, 42.0).NeedsManual)
}

func TestUnknownTypeNeedsManual(t *testing.T) {
	res := NewDefaultGrader().Grade(Q{Type: "hotspot", Points: 3}, "x")
	assert.True(t, res.NeedsManual)
	assert.Zero(t, res.PointsEarned)
	assert.Equal(t, 3.0, res.MaxPoints)
}

func TestWithStrategyOverride(t *testing.T) {
	always := StrategyFunc(func(q Q, _ any) Result {
		return Result{PointsEarned: q.Points, MaxPoints: q.Points, IsCorrect: true}
	})
	g := NewDefaultGrader(WithStrategy(TypeEssay, always))
	res := g.Grade(Q{Type: TypeEssay, Points: 7}, "")
	assert.Equal(t, 7.0, res.PointsEarned)
	assert.False(t, res.NeedsManual)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank("  \n"))
	assert.True(t, IsBlank([]any{}))
	assert.True(t, IsBlank(map[string]any{}))
	assert.False(t, IsBlank("a"))
	assert.False(t, IsBlank(0.0))
	assert.False(t, IsBlank(false))
}

func TestScoreRubric(t *testing.T) {
	r := Rubric{
		Max: 10,
		Criteria: []Criterion{
			{Key: "thesis", MaxPoints: 4},
			{Key: "evidence", MaxPoints: 6},
		},
	}
	total, notes := ScoreRubric(r, map[string]float64{"thesis": 5, "evidence": 3, "bogus": 100})
	assert.Equal(t, 7.0, total)
	assert.Equal(t, "thesis:4.00 evidence:3.00", notes)

	total, _ = ScoreRubric(r, map[string]float64{"thesis": -2})
	assert.Zero(t, total)
}
