package quiz

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateQuiz checks a quiz definition before it is saved. Every failure
// wraps ErrInvalidQuiz.
func ValidateQuiz(q Quiz, questions []Question) error {
	if err := validate.Struct(q); err != nil {
		return errors.Wrap(ErrInvalidQuiz, describe(err))
	}
	seen := make(map[string]bool, len(questions))
	for i, qq := range questions {
		if err := validate.Struct(qq); err != nil {
			return errors.Wrapf(ErrInvalidQuiz, "question %d: %s", i, describe(err))
		}
		if seen[qq.ID] {
			return errors.Wrapf(ErrInvalidQuiz, "question %d: duplicate id %q", i, qq.ID)
		}
		seen[qq.ID] = true
		if err := checkAnswerKey(qq); err != nil {
			return errors.Wrapf(ErrInvalidQuiz, "question %s: %s", qq.ID, err)
		}
	}
	if q.RandomQuestionCount > len(questions) {
		return errors.Wrapf(ErrInvalidQuiz, "random_question_count %d exceeds %d questions",
			q.RandomQuestionCount, len(questions))
	}
	return nil
}

func checkAnswerKey(q Question) error {
	switch q.Type {
	case grading.TypeMultipleChoice, grading.TypeTrueFalse:
		if len(q.Options) == 0 {
			return fmt.Errorf("%s needs at least one option", q.Type)
		}
	case grading.TypeShortAnswerKeywords:
		if len(q.KeywordGroups) == 0 {
			return fmt.Errorf("%s needs at least one keyword group", q.Type)
		}
	case grading.TypeEssay:
		if q.Rubric != nil {
			if err := validate.Struct(q.Rubric); err != nil {
				return fmt.Errorf("rubric: %s", describe(err))
			}
		}
	}
	return nil
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
