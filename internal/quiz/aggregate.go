package quiz

import (
	"math"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// AttemptStats is the Attempt Aggregator's output.
type AttemptStats struct {
	TotalScore          float64 `json:"total_score"`
	MaxScore            float64 `json:"max_score"`
	Percentage          float64 `json:"percentage"`
	Passed              bool    `json:"passed"`
	TotalQuestions      int     `json:"total_questions"`
	QuestionsAnswered   int     `json:"questions_answered"`
	QuestionsUnanswered int     `json:"questions_unanswered"`
	PendingReview       int     `json:"pending_review"`
	TimeSpentSeconds    int64   `json:"time_spent_sec"`
}

// Aggregate computes attempt totals over questions (the attempt's question
// set, answered or not) from the graded responses. Responses for questions
// outside the set are ignored. Percentage is rounded to two decimals and
// pass/fail is judged on the rounded value. The result depends only on its
// inputs, so re-running it over the same responses is safe.
func Aggregate(questions []Question, responses []Response, passingPercentage float64, timeSpentSeconds int64) AttemptStats {
	byQuestion := make(map[string]Response, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}

	st := AttemptStats{TotalQuestions: len(questions), TimeSpentSeconds: timeSpentSeconds}
	for _, q := range questions {
		st.MaxScore += q.Points
		r, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		st.TotalScore += r.PointsEarned
		if !grading.IsBlank(r.Value) {
			st.QuestionsAnswered++
		}
		if r.RequiresManualReview {
			st.PendingReview++
		}
	}
	st.QuestionsUnanswered = st.TotalQuestions - st.QuestionsAnswered
	if st.MaxScore > 0 {
		st.Percentage = round2(st.TotalScore / st.MaxScore * 100)
	}
	st.Passed = st.Percentage >= passingPercentage
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
