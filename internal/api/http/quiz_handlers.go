package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type saveQuizReq struct {
	quiz.Quiz
	Questions []quiz.Question `json:"questions" validate:"required,min=1"`
}

type quizResp struct {
	quiz.Quiz
	Questions []quiz.Question `json:"questions"`
}

// POST /quizzes
func SaveQuizHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveQuizReq
		if !decode(w, r, &req) {
			return
		}
		if err := ctrl.SaveQuiz(r.Context(), req.Quiz, req.Questions); err != nil {
			writeError(w, r, err)
			return
		}
		q, qs, err := ctrl.Quiz(r.Context(), req.ID, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, quizResp{Quiz: q, Questions: qs})
	}
}

// GET /quizzes/{quizID}
// Answer keys are only returned to roles with quiz:view-keys.
func GetQuizHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := strings.TrimSpace(chi.URLParam(r, "quizID"))
		withKeys := rbac.Can(r.Context(), "quiz:view-keys")
		q, qs, err := ctrl.Quiz(r.Context(), quizID, withKeys)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !withKeys {
			if !q.Published {
				writeError(w, r, quiz.ErrQuizNotFound)
				return
			}
			q.LineItemURL = ""
		}
		writeJSON(w, http.StatusOK, quizResp{Quiz: q, Questions: qs})
	}
}
