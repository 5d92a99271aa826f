package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daohub_backend/internal/auth"
	"daohub_backend/internal/cache"
	"daohub_backend/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(tokens *auth.TokenManager, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), AuthMiddleware(tokens))
	r.Use(extra...)
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c), "role": c.GetString(ContextRole)})
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("middleware-test-secret", time.Hour)
	r := newRouter(tokens)
	token, err := tokens.Issue("user-1", auth.RoleUser)
	require.NoError(t, err)

	w := get(r, "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"user-1","role":"user"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(r, "/me?token="+token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = get(r, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestRequirePermission(t *testing.T) {
	tokens := auth.NewTokenManager("middleware-test-secret", time.Hour)
	r := newRouter(tokens, RequirePermission(auth.PermQueuesManage))

	user, _ := tokens.Issue("user-1", auth.RoleUser)
	admin, _ := tokens.Issue("admin-1", auth.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, get(r, "/me", user).Code)
	assert.Equal(t, http.StatusOK, get(r, "/me", admin).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("middleware-test-secret", time.Hour)
	limiter := ratelimit.NewLimiter(cache.NewMemoryCache())
	r := newRouter(tokens, RateLimitMiddleware(limiter, "api", time.Minute, 2))

	alice, _ := tokens.Issue("alice", auth.RoleUser)
	bob, _ := tokens.Issue("bob", auth.RoleUser)

	w := get(r, "/me", alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, get(r, "/me", alice).Code)

	w = get(r, "/me", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, get(r, "/me", bob).Code)
}
