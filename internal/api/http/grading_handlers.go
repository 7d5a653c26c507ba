package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type reviewReq struct {
	Items map[string]quiz.ReviewInput `json:"items" validate:"required,min=1"` // question_id -> score
}

// POST /attempts/{attemptID}/grade
// Re-runs auto-grading; reviewer scores are kept.
func GradeAttemptHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		a, err := ctrl.AutoGrade(r.Context(), attemptID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/grading
func GetAttemptGradingHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		items, err := ctrl.GradingItems(r.Context(), attemptID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// POST /attempts/{attemptID}/grading
func ApplyAttemptGradingHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		var req reviewReq
		if !decode(w, r, &req) {
			return
		}
		a, err := ctrl.Review(r.Context(), attemptID, auth.SubjectFromContext(r.Context()), req.Items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/events
func ListAttemptEventsHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		events, err := ctrl.Events(r.Context(), attemptID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
