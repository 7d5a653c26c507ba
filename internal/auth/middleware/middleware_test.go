package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func TestJWTMiddlewareSetsIdentity(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("stu-1", "student")
	require.NoError(t, err)

	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", sub)
	assert.Equal(t, "student", role)
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("test-secret")
	other, err := NewAuthService("other-secret").IssueJWT("x", "admin")
	require.NoError(t, err)

	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + other,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("test-secret")
	h := LoginHandler(a, LoginOptions{AdminUser: "admin", AdminPassHash: string(hash), DevUsers: true})

	login := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		return rec
	}

	rec := login(`{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "admin", out["role"])
	c, err := a.Parse(out["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Subject)

	assert.Equal(t, http.StatusUnauthorized, login(`{"username":"admin","password":"nope"}`).Code)
	assert.Equal(t, http.StatusOK, login(`{"username":"bob","password":"bob","role":"student"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(`{"username":"bob","password":"bob","role":"admin"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(`{`).Code)
}
