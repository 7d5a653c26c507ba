package quiz

import "github.com/mind-engage/mindengage-quiz/internal/grading"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

type Quiz struct {
	ID                  string  `json:"id" validate:"required"`
	CourseID            string  `json:"course_id" validate:"required"`
	Title               string  `json:"title"`
	PassingPercentage   float64 `json:"passing_percentage" validate:"gte=0,lte=100"`
	TimeLimitSec        int     `json:"time_limit_sec" validate:"gte=0"`
	AttemptsAllowed     int     `json:"attempts_allowed" validate:"gte=0"` // 0 = unlimited
	ShuffleQuestions    bool    `json:"shuffle_questions"`
	RandomQuestionCount int     `json:"random_question_count" validate:"gte=0"` // 0 = every question
	Published           bool    `json:"published"`
	LineItemURL         string  `json:"line_item_url,omitempty" validate:"omitempty,url"`
	CreatedAt           int64   `json:"created_at,omitempty"`
}

type AnswerOption struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

type Question struct {
	ID       string  `json:"id" validate:"required"`
	QuizID   string  `json:"quiz_id"`
	Type     string  `json:"type" validate:"required,oneof=multiple_choice true_false short_answer short_answer_keywords essay"`
	Prompt   string  `json:"prompt,omitempty"`
	Points   float64 `json:"points" validate:"gte=0"`
	Position int     `json:"position"`

	Options           []AnswerOption  `json:"options,omitempty" validate:"dive"`
	AcceptableAnswers []string        `json:"acceptable_answers,omitempty"`
	KeywordGroups     [][]string      `json:"keyword_groups,omitempty"`
	RequiredKeywords  int             `json:"required_keywords,omitempty" validate:"gte=0"`
	Rubric            *grading.Rubric `json:"rubric,omitempty"`
}

// StudentView returns a copy of the question with every answer key removed.
func (q Question) StudentView() Question {
	out := q
	out.AcceptableAnswers = nil
	out.KeywordGroups = nil
	out.RequiredKeywords = 0
	out.Rubric = nil
	out.Options = make([]AnswerOption, len(q.Options))
	for i, o := range q.Options {
		out.Options[i] = AnswerOption{ID: o.ID, Text: o.Text}
	}
	return out
}

func (q Question) gradingQ() grading.Q {
	choices := make([]grading.Choice, len(q.Options))
	for i, o := range q.Options {
		choices[i] = grading.Choice{ID: o.ID, Correct: o.IsCorrect, Feedback: o.Feedback}
	}
	return grading.Q{
		Type:             q.Type,
		Points:           q.Points,
		Choices:          choices,
		Accepted:         q.AcceptableAnswers,
		KeywordGroups:    q.KeywordGroups,
		RequiredKeywords: q.RequiredKeywords,
	}
}

// Attempt is one student's pass through a quiz. Timestamps are unix seconds;
// zero means "not yet".
type Attempt struct {
	ID          string   `json:"id"`
	QuizID      string   `json:"quiz_id"`
	StudentID   string   `json:"student_id"`
	Number      int      `json:"attempt_number"`
	Status      Status   `json:"status"`
	QuestionIDs []string `json:"question_ids"`

	StartedAt        int64 `json:"started_at"`
	DeadlineAt       int64 `json:"deadline_at,omitempty"`
	SubmittedAt      int64 `json:"submitted_at,omitempty"`
	GradedAt         int64 `json:"graded_at,omitempty"`
	TimeSpentSeconds int64 `json:"time_spent_sec"`

	TotalScore          float64 `json:"total_score"`
	MaxScore            float64 `json:"max_score"`
	Percentage          float64 `json:"percentage"`
	Passed              bool    `json:"passed"`
	QuestionsAnswered   int     `json:"questions_answered"`
	QuestionsUnanswered int     `json:"questions_unanswered"`
	PendingReview       int     `json:"pending_review"`
}

func (a Attempt) hasQuestion(id string) bool {
	for _, q := range a.QuestionIDs {
		if q == id {
			return true
		}
	}
	return false
}

// questionSet returns the attempt's questions in attempt order, skipping ids
// that no longer exist in the quiz.
func (a Attempt) questionSet(all []Question) []Question {
	byID := make(map[string]Question, len(all))
	for _, q := range all {
		byID[q.ID] = q
	}
	out := make([]Question, 0, len(a.QuestionIDs))
	for _, id := range a.QuestionIDs {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (a *Attempt) applyStats(s AttemptStats) {
	a.TotalScore = s.TotalScore
	a.MaxScore = s.MaxScore
	a.Percentage = s.Percentage
	a.Passed = s.Passed
	a.QuestionsAnswered = s.QuestionsAnswered
	a.QuestionsUnanswered = s.QuestionsUnanswered
	a.PendingReview = s.PendingReview
}

// Response is a student's answer to one question within one attempt.
type Response struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`

	PointsEarned         float64 `json:"points_earned"`
	IsCorrect            bool    `json:"is_correct"`
	Feedback             string  `json:"feedback,omitempty"`
	RequiresManualReview bool    `json:"requires_manual_review"`
	Graded               bool    `json:"graded"`
	ReviewedBy           string  `json:"reviewed_by,omitempty"`
	ReviewedAt           int64   `json:"reviewed_at,omitempty"`
	UpdatedAt            int64   `json:"updated_at"`
}

// Grade is the persisted form of the aggregator's output, one per graded attempt.
type Grade struct {
	AttemptID           string  `json:"attempt_id"`
	QuizID              string  `json:"quiz_id"`
	StudentID           string  `json:"student_id"`
	AttemptNumber       int     `json:"attempt_number"`
	TotalScore          float64 `json:"total_score"`
	MaxScore            float64 `json:"max_score"`
	Percentage          float64 `json:"percentage"`
	Passed              bool    `json:"passed"`
	QuestionsAnswered   int     `json:"questions_answered"`
	QuestionsUnanswered int     `json:"questions_unanswered"`
	TimeSpentSeconds    int64   `json:"time_spent_sec"`
}

func gradeFor(a Attempt) Grade {
	return Grade{
		AttemptID:           a.ID,
		QuizID:              a.QuizID,
		StudentID:           a.StudentID,
		AttemptNumber:       a.Number,
		TotalScore:          a.TotalScore,
		MaxScore:            a.MaxScore,
		Percentage:          a.Percentage,
		Passed:              a.Passed,
		QuestionsAnswered:   a.QuestionsAnswered,
		QuestionsUnanswered: a.QuestionsUnanswered,
		TimeSpentSeconds:    a.TimeSpentSeconds,
	}
}

// ReviewInput is a reviewer's verdict for one response. Awards is used instead
// of Points when the question carries a rubric.
type ReviewInput struct {
	Points  float64            `json:"points"`
	Awards  map[string]float64 `json:"awards,omitempty"`
	Comment string             `json:"comment,omitempty"`
}

// AttemptDetail bundles an attempt with its responses and grade (if any).
type AttemptDetail struct {
	Attempt
	Responses []Response `json:"responses"`
	Grade     *Grade     `json:"grade,omitempty"`
}

// GradingItem is one question of an attempt as a reviewer sees it.
type GradingItem struct {
	QuestionID string          `json:"question_id"`
	Type       string          `json:"type"`
	Prompt     string          `json:"prompt,omitempty"`
	MaxPoints  float64         `json:"max_points"`
	Rubric     *grading.Rubric `json:"rubric,omitempty"`
	Response   *Response       `json:"response,omitempty"`
}

type ListOpts struct {
	QuizID         string
	StudentID      string
	Status         Status
	DeadlineBefore int64 // only attempts with 0 < deadline_at < DeadlineBefore
	Limit          int
	Offset         int
}

// Event is an append-only record of an attempt transition.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	AttemptID string `json:"attempt_id"`
	Data      string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptGraded    = "attempt.graded"
	EventAttemptRegraded  = "attempt.regraded"
	EventAttemptReviewed  = "attempt.reviewed"
)
