package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func questions(points ...float64) []Question {
	out := make([]Question, len(points))
	for i, p := range points {
		out[i] = Question{ID: string(rune('a' + i)), Type: "short_answer", Points: p, Position: i + 1}
	}
	return out
}

func TestAggregate(t *testing.T) {
	qs := questions(10, 20, 30)
	responses := []Response{
		{QuestionID: "a", Value: "x", PointsEarned: 10},
		{QuestionID: "b", Value: "y", PointsEarned: 0},
		{QuestionID: "c", Value: "z", PointsEarned: 30},
	}

	st := Aggregate(qs, responses, 60, 95)
	assert.Equal(t, 40.0, st.TotalScore)
	assert.Equal(t, 60.0, st.MaxScore)
	assert.Equal(t, 66.67, st.Percentage)
	assert.True(t, st.Passed)
	assert.Equal(t, 3, st.QuestionsAnswered)
	assert.Equal(t, 0, st.QuestionsUnanswered)
	assert.Equal(t, int64(95), st.TimeSpentSeconds)

	assert.False(t, Aggregate(qs, responses, 66.68, 0).Passed)
	assert.True(t, Aggregate(qs, responses, 66.67, 0).Passed, "threshold is judged on the rounded value")
}

func TestAggregateCountsUnansweredAndPending(t *testing.T) {
	qs := questions(5, 5, 5, 5)
	responses := []Response{
		{QuestionID: "a", Value: "x", PointsEarned: 5},
		{QuestionID: "b", Value: "   "},
		{QuestionID: "c", Value: "essay text", RequiresManualReview: true},
		{QuestionID: "zz", Value: "outside the set", PointsEarned: 100},
	}

	st := Aggregate(qs, responses, 50, 0)
	assert.Equal(t, 5.0, st.TotalScore)
	assert.Equal(t, 20.0, st.MaxScore)
	assert.Equal(t, 4, st.TotalQuestions)
	assert.Equal(t, 2, st.QuestionsAnswered)
	assert.Equal(t, 2, st.QuestionsUnanswered)
	assert.Equal(t, 1, st.PendingReview)
}

func TestAggregateZeroPointQuiz(t *testing.T) {
	st := Aggregate(questions(0, 0), nil, 0, 0)
	assert.Equal(t, 0.0, st.Percentage)
	assert.True(t, st.Passed)

	st = Aggregate(nil, nil, 50, 0)
	assert.Equal(t, 0.0, st.Percentage)
	assert.False(t, st.Passed)
}

func TestAggregateIsDeterministic(t *testing.T) {
	qs := questions(3, 7)
	responses := []Response{{QuestionID: "b", Value: "v", PointsEarned: 7}, {QuestionID: "a", Value: "w", PointsEarned: 1}}
	assert.Equal(t, Aggregate(qs, responses, 70, 12), Aggregate(qs, responses, 70, 12))
}
