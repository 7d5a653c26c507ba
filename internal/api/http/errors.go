package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const codeInvalidRequest = "INVALID_REQUEST"

var validate = validator.New(validator.WithRequiredStructEnabled())

func statusFor(code string) int {
	switch code {
	case quiz.ErrQuizNotFound.Code, quiz.ErrAttemptNotFound.Code, quiz.ErrGradeNotFound.Code:
		return http.StatusNotFound
	case quiz.ErrAttemptsExceeded.Code, quiz.ErrQuizUnpublished.Code, quiz.ErrInvalidState.Code:
		return http.StatusConflict
	case quiz.ErrMalformedResponse.Code:
		return http.StatusUnprocessableEntity
	case quiz.ErrInvalidQuiz.Code, codeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to a status and a {"error","message"} body.
// Anything unrecognised is a 500 whose detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := quiz.CodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		code, msg = "INTERNAL", "internal error"
	}
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": codeInvalidRequest, "message": msg})
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "FORBIDDEN", "message": "forbidden"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		badRequest(w, err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}
