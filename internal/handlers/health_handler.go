package handlers

import (
	"context"
	"net/http"
	"time"

	"daohub_backend/internal/cache"
	"daohub_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	cache cache.Cache
}

// NewHealthHandler; db may be nil when the process runs without a store.
func NewHealthHandler(db Pinger, c cache.Cache) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/health/ready", h.Ready)
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the store and the cache. A cache miss is healthy; only an
// unavailable backend fails the check.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			apperrors.HandleError(c, apperrors.ErrDatabaseUnavailable.WithError(err))
			return
		}
	}
	if h.cache != nil {
		if _, err := h.cache.Exists(ctx, "health:ready"); cache.IsUnavailable(err) {
			apperrors.HandleError(c, apperrors.ErrCacheUnavailable.WithError(err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
