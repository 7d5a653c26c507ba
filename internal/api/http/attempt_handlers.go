package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// POST /quizzes/{quizID}/attempts
// Starts the caller's next attempt.
func StartAttemptHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := strings.TrimSpace(chi.URLParam(r, "quizID"))
		sub := auth.SubjectFromContext(r.Context())
		a, err := ctrl.Start(r.Context(), quizID, sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GET /quizzes/{quizID}/attempts?student_id=...&status=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := quiz.ListOpts{
			QuizID:    strings.TrimSpace(chi.URLParam(r, "quizID")),
			StudentID: strings.TrimSpace(q.Get("student_id")),
			Status:    quiz.Status(strings.TrimSpace(q.Get("status"))),
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		}
		switch opts.Status {
		case "", quiz.StatusInProgress, quiz.StatusSubmitted, quiz.StatusGraded:
		default:
			badRequest(w, "unknown status "+string(opts.Status))
			return
		}
		if !rbac.Can(r.Context(), "attempt:view-all") {
			opts.StudentID = auth.SubjectFromContext(r.Context())
		}
		list, err := ctrl.ListAttempts(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := ownedAttempt(w, r, ctrl, true)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

type saveResponseReq struct {
	Value any `json:"value"`
}

// PUT /attempts/{attemptID}/responses/{questionID}
func SaveResponseHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveResponseReq
		if !decode(w, r, &req) {
			return
		}
		d, ok := ownedAttempt(w, r, ctrl, false)
		if !ok {
			return
		}
		questionID := strings.TrimSpace(chi.URLParam(r, "questionID"))
		resp, err := ctrl.RecordAnswer(r.Context(), d.ID, questionID, req.Value)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// POST /attempts/{attemptID}/submit
// Submits and auto-grades in one call.
func SubmitAttemptHandler(ctrl *quiz.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := ownedAttempt(w, r, ctrl, false)
		if !ok {
			return
		}
		if _, err := ctrl.Submit(r.Context(), d.ID); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := ctrl.AutoGrade(r.Context(), d.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ownedAttempt loads the attempt in the URL and checks the caller owns it.
// With allowStaff, attempt:view-all also grants access.
func ownedAttempt(w http.ResponseWriter, r *http.Request, ctrl *quiz.Controller, allowStaff bool) (quiz.AttemptDetail, bool) {
	attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
	d, err := ctrl.Attempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, r, err)
		return quiz.AttemptDetail{}, false
	}
	if d.StudentID == auth.SubjectFromContext(r.Context()) {
		return d, true
	}
	if allowStaff && rbac.Can(r.Context(), "attempt:view-all") {
		return d, true
	}
	forbidden(w)
	return quiz.AttemptDetail{}, false
}
