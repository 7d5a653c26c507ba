package gradebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type fakeAGS struct {
	srv    *httptest.Server
	scores []map[string]any
	auth   []string
	status int
}

func newFakeAGS(t *testing.T) *fakeAGS {
	t.Helper()
	f := &fakeAGS{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/lineitems/7/scores", func(w http.ResponseWriter, r *http.Request) {
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		assert.Equal(t, scoreContentType, r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.scores = append(f.scores, body)
		w.WriteHeader(f.status)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestPublishGradePostsScore(t *testing.T) {
	ags := newFakeAGS(t)
	p := NewPublisher(New(Config{
		TokenURL: ags.srv.URL + "/token", ClientID: "cid", ClientSecret: "sec", Timeout: 5 * time.Second,
	}))
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	q := quiz.Quiz{ID: "q1", LineItemURL: ags.srv.URL + "/lineitems/7/"}
	g := quiz.Grade{AttemptID: "a1", StudentID: "stu", AttemptNumber: 2, TotalScore: 40, MaxScore: 60, Percentage: 66.67}
	require.NoError(t, p.PublishGrade(context.Background(), q, g))

	require.Len(t, ags.scores, 1)
	assert.Equal(t, "Bearer tok-1", ags.auth[0])
	s := ags.scores[0]
	assert.Equal(t, "stu", s["userId"])
	assert.Equal(t, 40.0, s["scoreGiven"])
	assert.Equal(t, 60.0, s["scoreMaximum"])
	assert.Equal(t, "FullyGraded", s["gradingProgress"])
	assert.Equal(t, "2023-11-14T22:13:20Z", s["timestamp"])
}

func TestPublishGradeSurfacesPlatformErrors(t *testing.T) {
	ags := newFakeAGS(t)
	ags.status = http.StatusForbidden
	p := NewPublisher(New(Config{TokenURL: ags.srv.URL + "/token", ClientID: "cid", ClientSecret: "sec"}))

	err := p.PublishGrade(context.Background(), quiz.Quiz{LineItemURL: ags.srv.URL + "/lineitems/7"}, quiz.Grade{StudentID: "stu"})
	require.Error(t, err)
	assert.Equal(t, "post score: 403 Forbidden", err.Error())
	assert.Contains(t, fmt.Sprintf("%+v", err), "PostScore", "error carries a stack trace")
}

func TestScoresURL(t *testing.T) {
	assert.Equal(t, "https://lms/li/1/scores", scoresURL("https://lms/li/1"))
	assert.Equal(t, "https://lms/li/1/scores", scoresURL("https://lms/li/1/"))
	assert.Equal(t, "https://lms/li/1/scores?type=x", scoresURL("https://lms/li/1?type=x"))
}
