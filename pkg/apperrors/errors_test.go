package apperrors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailsDoesNotMutateShared(t *testing.T) {
	withDetails := ErrNotificationNotFound.WithDetails("id=1")

	assert.Nil(t, ErrNotificationNotFound.Details)
	assert.Equal(t, "id=1", withDetails.Details)
	assert.True(t, Is(withDetails, ErrNotificationNotFound))
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("mark read: %w", ErrNotificationForbidden)

	assert.True(t, Is(err, ErrNotificationForbidden))
	assert.False(t, Is(err, ErrNotificationNotFound))
	assert.True(t, HasCode(err, CodeForbidden))
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, RateLimited(time.Now().Add(30*time.Second)))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), string(CodeRateLimited))
}

func TestUnknownErrorBecomesInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(c, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(CodeInternalError))
}
