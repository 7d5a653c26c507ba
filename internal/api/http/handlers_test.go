package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type testAPI struct {
	t       *testing.T
	srv     *httptest.Server
	authSvc *auth.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	authSvc := auth.NewAuthService("test-secret")
	ctrl := quiz.NewController(quiz.NewInMemoryStore())

	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		Mount(pr, ctrl)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, authSvc: authSvc}
}

func (a *testAPI) do(sub, role, method, path string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	tok, err := a.authSvc.IssueJWT(sub, role)
	require.NoError(a.t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func seedQuiz(t *testing.T, api *testAPI, attemptsAllowed int) {
	t.Helper()
	body := map[string]any{
		"id": "q1", "course_id": "c1", "title": "Cells", "passing_percentage": 50,
		"attempts_allowed": attemptsAllowed, "published": true,
		"questions": []map[string]any{
			{"id": "mc", "type": "multiple_choice", "points": 10, "options": []map[string]any{
				{"id": "a", "text": "mitochondria", "is_correct": true},
				{"id": "b", "text": "ribosome"},
			}},
			{"id": "sa", "type": "short_answer", "points": 10, "acceptable_answers": []string{"Nucleus"}},
			{"id": "es", "type": "essay", "points": 20},
		},
	}
	require.Equal(t, http.StatusCreated, api.do("t1", "teacher", http.MethodPost, "/quizzes", body, nil))
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestQuizViewHidesKeysFromStudents(t *testing.T) {
	api := newTestAPI(t)
	seedQuiz(t, api, 0)

	var student quizResp
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodGet, "/quizzes/q1", nil, &student))
	require.Len(t, student.Questions, 3)
	assert.False(t, student.Questions[0].Options[0].IsCorrect)
	assert.Empty(t, student.Questions[1].AcceptableAnswers)

	var teacher quizResp
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, "/quizzes/q1", nil, &teacher))
	assert.True(t, teacher.Questions[0].Options[0].IsCorrect)
	assert.Equal(t, []string{"Nucleus"}, teacher.Questions[1].AcceptableAnswers)
}

func TestSaveQuizRejectsInvalidDefinition(t *testing.T) {
	api := newTestAPI(t)
	var eb errBody
	code := api.do("t1", "teacher", http.MethodPost, "/quizzes", map[string]any{
		"id": "bad", "course_id": "c1", "passing_percentage": 150,
		"questions": []map[string]any{{"id": "x", "type": "essay", "points": 1}},
	}, &eb)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_QUIZ", eb.Error)

	assert.Equal(t, http.StatusForbidden, api.do("s1", "student", http.MethodPost, "/quizzes", map[string]any{}, nil))
}

func TestAttemptFlowWithReview(t *testing.T) {
	api := newTestAPI(t)
	seedQuiz(t, api, 1)

	var a quiz.Attempt
	require.Equal(t, http.StatusCreated, api.do("s1", "student", http.MethodPost, "/quizzes/q1/attempts", nil, &a))
	assert.Equal(t, 1, a.Number)
	assert.Equal(t, quiz.StatusInProgress, a.Status)

	base := "/attempts/" + a.ID
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodPut, base+"/responses/mc", map[string]any{"value": "a"}, nil))
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodPut, base+"/responses/sa", map[string]any{"value": " nucleus "}, nil))
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodPut, base+"/responses/es", map[string]any{"value": "Cells divide."}, nil))

	var eb errBody
	assert.Equal(t, http.StatusUnprocessableEntity,
		api.do("s1", "student", http.MethodPut, base+"/responses/nope", map[string]any{"value": "x"}, &eb))
	assert.Equal(t, "MALFORMED_RESPONSE", eb.Error)

	assert.Equal(t, http.StatusForbidden,
		api.do("s2", "student", http.MethodPut, base+"/responses/mc", map[string]any{"value": "b"}, nil))

	var submitted quiz.Attempt
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodPost, base+"/submit", nil, &submitted))
	assert.Equal(t, quiz.StatusSubmitted, submitted.Status, "essay awaits review")
	assert.Equal(t, 20.0, submitted.TotalScore)
	assert.Equal(t, 1, submitted.PendingReview)

	assert.Equal(t, http.StatusConflict,
		api.do("s1", "student", http.MethodPut, base+"/responses/mc", map[string]any{"value": "b"}, &eb))
	assert.Equal(t, "INVALID_STATE", eb.Error)

	assert.Equal(t, http.StatusConflict, api.do("s1", "student", http.MethodPost, "/quizzes/q1/attempts", nil, &eb))
	assert.Equal(t, "ATTEMPTS_EXCEEDED", eb.Error)

	var items []quiz.GradingItem
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, base+"/grading", nil, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "es", items[2].QuestionID)
	require.NotNil(t, items[2].Response)
	assert.True(t, items[2].Response.RequiresManualReview)

	var graded quiz.Attempt
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodPost, base+"/grading",
		map[string]any{"items": map[string]any{"es": map[string]any{"points": 15, "comment": "good"}}}, &graded))
	assert.Equal(t, quiz.StatusGraded, graded.Status)
	assert.Equal(t, 35.0, graded.TotalScore)
	assert.Equal(t, 87.5, graded.Percentage)

	var detail quiz.AttemptDetail
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodGet, base, nil, &detail))
	require.NotNil(t, detail.Grade)
	assert.Equal(t, 35.0, detail.Grade.TotalScore)
	assert.True(t, detail.Grade.Passed)

	assert.Equal(t, http.StatusForbidden, api.do("s2", "student", http.MethodGet, base, nil, nil))
	assert.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, base, nil, nil))

	var events []quiz.Event
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, base+"/events", nil, &events))
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{quiz.EventAttemptStarted, quiz.EventAttemptSubmitted, quiz.EventAttemptGraded, quiz.EventAttemptReviewed}, types)
}

func TestListAttemptsScopesStudents(t *testing.T) {
	api := newTestAPI(t)
	seedQuiz(t, api, 0)
	for _, s := range []string{"s1", "s2", "s1"} {
		require.Equal(t, http.StatusCreated, api.do(s, "student", http.MethodPost, "/quizzes/q1/attempts", nil, nil))
	}

	var mine []quiz.Attempt
	require.Equal(t, http.StatusOK, api.do("s1", "student", http.MethodGet, "/quizzes/q1/attempts?student_id=s2", nil, &mine))
	require.Len(t, mine, 2)
	for _, a := range mine {
		assert.Equal(t, "s1", a.StudentID)
	}

	var all []quiz.Attempt
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, "/quizzes/q1/attempts", nil, &all))
	assert.Len(t, all, 3)

	var page []quiz.Attempt
	require.Equal(t, http.StatusOK, api.do("t1", "teacher", http.MethodGet, "/quizzes/q1/attempts?limit=1&offset=1", nil, &page))
	assert.Len(t, page, 1)

	assert.Equal(t, http.StatusBadRequest, api.do("t1", "teacher", http.MethodGet, "/quizzes/q1/attempts?status=bogus", nil, nil))
}

func TestUnknownQuizIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	var eb errBody
	assert.Equal(t, http.StatusNotFound, api.do("s1", "student", http.MethodPost, "/quizzes/missing/attempts", nil, &eb))
	assert.Equal(t, "QUIZ_NOT_FOUND", eb.Error)
	assert.Equal(t, http.StatusNotFound, api.do("s1", "student", http.MethodGet, "/attempts/missing", nil, nil))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor("GRADE_NOT_FOUND"))
	assert.Equal(t, http.StatusConflict, statusFor("QUIZ_UNPUBLISHED"))
	assert.Equal(t, http.StatusBadRequest, statusFor(codeInvalidRequest))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}
