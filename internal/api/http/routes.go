package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Mount registers the quiz engine routes. r must already carry the JWT
// middleware so subject and role are in the request context.
func Mount(r chi.Router, ctrl *quiz.Controller) {
	r.With(rbac.Require("quiz:create")).
		Post("/quizzes", SaveQuizHandler(ctrl))
	r.With(rbac.Require("quiz:view")).
		Get("/quizzes/{quizID}", GetQuizHandler(ctrl))

	// Student flow
	r.With(rbac.Require("attempt:create")).
		Post("/quizzes/{quizID}/attempts", StartAttemptHandler(ctrl))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/quizzes/{quizID}/attempts", ListAttemptsHandler(ctrl))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}", GetAttemptHandler(ctrl))
	r.With(rbac.Require("attempt:save")).
		Put("/attempts/{attemptID}/responses/{questionID}", SaveResponseHandler(ctrl))
	r.With(rbac.Require("attempt:submit")).
		Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(ctrl))

	// Grading
	r.With(rbac.Require("attempt:grade")).
		Post("/attempts/{attemptID}/grade", GradeAttemptHandler(ctrl))
	r.With(rbac.Require("attempt:grade")).
		Get("/attempts/{attemptID}/grading", GetAttemptGradingHandler(ctrl))
	r.With(rbac.Require("attempt:grade")).
		Post("/attempts/{attemptID}/grading", ApplyAttemptGradingHandler(ctrl))
	r.With(rbac.Require("attempt:view-all")).
		Get("/attempts/{attemptID}/events", ListAttemptEventsHandler(ctrl))
}
