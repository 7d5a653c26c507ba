package grading

import (
	"fmt"
	"math"
	"strings"
)

// gradeChoice grades multiple_choice and true_false questions by option id.
func gradeChoice(q Q, response any) Result {
	res := Result{MaxPoints: q.Points, Feedback: FeedbackIncorrect}
	if IsBlank(response) {
		res.Feedback = FeedbackBlank
		return res
	}
	id, ok := asText(response)
	if !ok {
		return res
	}
	id = strings.TrimSpace(id)
	for _, c := range q.Choices {
		if c.ID != id {
			continue
		}
		if c.Correct {
			res.PointsEarned = q.Points
			res.IsCorrect = true
			res.Feedback = FeedbackCorrect
		}
		if c.Feedback != "" {
			res.Feedback = c.Feedback
		}
		return res
	}
	return res
}

// gradeShortAnswer compares the normalized response against the accepted answers.
func gradeShortAnswer(q Q, response any) Result {
	res := Result{MaxPoints: q.Points, Feedback: FeedbackIncorrect}
	text, ok := asText(response)
	if !ok || strings.TrimSpace(text) == "" {
		res.Feedback = FeedbackBlank
		return res
	}
	got := normalize(text)
	for _, a := range q.Accepted {
		if na := normalize(a); na != "" && na == got {
			res.PointsEarned = q.Points
			res.IsCorrect = true
			res.Feedback = FeedbackCorrect
			return res
		}
	}
	return res
}

// gradeKeywords awards full credit once the required number of keyword groups
// is matched and proportional credit (floored) below that.
func gradeKeywords(q Q, response any) Result {
	res := Result{MaxPoints: q.Points}
	text, ok := asText(response)
	if !ok || strings.TrimSpace(text) == "" {
		res.Feedback = FeedbackBlank
		return res
	}
	total := len(q.KeywordGroups)
	if total == 0 {
		res.Feedback = FeedbackNoKey
		return res
	}
	required := q.RequiredKeywords
	if required <= 0 || required > total {
		required = total
	}

	low := normalize(text)
	matched := 0
	for _, group := range q.KeywordGroups {
		if groupMatches(low, group) {
			matched++
		}
	}

	if matched >= required {
		res.PointsEarned = q.Points
		res.IsCorrect = true
	} else {
		res.PointsEarned = math.Floor(q.Points * float64(matched) / float64(total))
	}
	res.Feedback = fmt.Sprintf("keyword groups matched: %d/%d", matched, total)
	return res
}

func groupMatches(normalized string, group []string) bool {
	for _, k := range group {
		nk := normalize(k)
		if nk == "" {
			continue
		}
		if strings.Contains(normalized, nk) {
			return true
		}
	}
	return false
}

// gradeEssay never scores; it flags the response for a reviewer.
func gradeEssay(q Q, response any) Result {
	res := Result{MaxPoints: q.Points, NeedsManual: true, Feedback: FeedbackSubmitted}
	if text, ok := asText(response); !ok || strings.TrimSpace(text) == "" {
		res.Feedback = FeedbackBlank
	}
	return res
}
