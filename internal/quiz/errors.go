package quiz

import "github.com/pkg/errors"

// Error is an engine error kind. Call sites wrap the sentinels below with
// context; use errors.Is to test and CodeOf to extract the code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrQuizNotFound      = &Error{Code: "QUIZ_NOT_FOUND", Message: "quiz not found"}
	ErrAttemptNotFound   = &Error{Code: "ATTEMPT_NOT_FOUND", Message: "attempt not found"}
	ErrGradeNotFound     = &Error{Code: "GRADE_NOT_FOUND", Message: "grade not found"}
	ErrAttemptsExceeded  = &Error{Code: "ATTEMPTS_EXCEEDED", Message: "no attempts left for this quiz"}
	ErrQuizUnpublished   = &Error{Code: "QUIZ_UNPUBLISHED", Message: "quiz is not published"}
	ErrInvalidState      = &Error{Code: "INVALID_STATE", Message: "attempt is not in the required state"}
	ErrMalformedResponse = &Error{Code: "MALFORMED_RESPONSE", Message: "malformed response"}
	ErrInvalidQuiz       = &Error{Code: "INVALID_QUIZ", Message: "invalid quiz definition"}

	// ErrDuplicateAttempt is returned by Store.CreateAttempt when the
	// (quiz, student, attempt number) triple is already taken.
	ErrDuplicateAttempt = errors.New("attempt number already taken")
)

// CodeOf returns the engine error code carried by err, or "" when err is not
// an engine error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
