package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"daohub_backend/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func healthRouter(db Pinger, c cache.Cache) *gin.Engine {
	r := gin.New()
	NewHealthHandler(db, c).RegisterRoutes(r)
	return r
}

func TestReadiness(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })

	w := do(healthRouter(ok, cache.NewMemoryCache()), http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)

	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	w = do(healthRouter(down, cache.NewMemoryCache()), http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "DATABASE_ERROR")

	closed := cache.NewMemoryCache()
	require.NoError(t, closed.Close())
	w = do(healthRouter(ok, closed), http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "CACHE_UNAVAILABLE")

	w = do(healthRouter(down, closed), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
