package handlers

import (
	"net/http"
	"time"

	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"

	"github.com/gin-gonic/gin"
)

// QueueAdmin is the operator surface of the delivery queue.
type QueueAdmin interface {
	Names() []string
	Counts(name string) (queue.Counts, error)
	Pause(name string) error
	Resume(name string) error
	Clean(name string, olderThan time.Duration, status queue.Status) (int, error)
	Jobs(name string, status queue.Status) ([]queue.Job, error)
}

type QueueHandler struct {
	*BaseHandler
	queue    QueueAdmin
	failures repositories.DeliveryFailureRepository
}

func NewQueueHandler(base *BaseHandler, q QueueAdmin, failures repositories.DeliveryFailureRepository) *QueueHandler {
	return &QueueHandler{BaseHandler: base, queue: q, failures: failures}
}

func (h *QueueHandler) RegisterRoutes(r *gin.RouterGroup, mw ...gin.HandlerFunc) {
	queues := r.Group("/admin/queues")
	queues.Use(mw...)
	{
		queues.GET("", h.ListQueues)
		queues.GET("/failures", h.ListFailures)
		queues.GET("/:name/jobs", h.ListJobs)
		queues.POST("/:name/pause", h.Pause)
		queues.POST("/:name/resume", h.Resume)
		queues.POST("/:name/clean", h.Clean)
	}
}

type queueSummary struct {
	Name string `json:"name"`
	queue.Counts
}

func (h *QueueHandler) ListQueues(c *gin.Context) {
	names := h.queue.Names()
	out := make([]queueSummary, 0, len(names))
	for _, name := range names {
		counts, err := h.queue.Counts(name)
		if err != nil {
			h.HandleServiceError(c, err)
			return
		}
		out = append(out, queueSummary{Name: name, Counts: counts})
	}
	c.JSON(http.StatusOK, gin.H{"queues": out})
}

type jobsQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=pending active delivered failed"`
}

func (h *QueueHandler) ListJobs(c *gin.Context) {
	var q jobsQuery
	if !h.BindAndValidate_Query(c, &q) {
		return
	}
	jobs, err := h.queue.Jobs(c.Param("name"), queue.Status(q.Status))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *QueueHandler) Pause(c *gin.Context) {
	if err := h.queue.Pause(c.Param("name")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": c.Param("name"), "paused": true})
}

func (h *QueueHandler) Resume(c *gin.Context) {
	if err := h.queue.Resume(c.Param("name")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": c.Param("name"), "paused": false})
}

type cleanRequest struct {
	Status           string `json:"status" validate:"omitempty,oneof=delivered failed"`
	OlderThanSeconds int    `json:"olderThanSeconds" validate:"gte=0"`
}

func (h *QueueHandler) Clean(c *gin.Context) {
	var req cleanRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}
	removed, err := h.queue.Clean(c.Param("name"), time.Duration(req.OlderThanSeconds)*time.Second, queue.Status(req.Status))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type failuresQuery struct {
	Queue string `form:"queue"`
	Limit int    `form:"limit" validate:"omitempty,gte=1,max=500"`
}

func (h *QueueHandler) ListFailures(c *gin.Context) {
	var q failuresQuery
	if !h.BindAndValidate_Query(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	failures, err := h.failures.List(c.Request.Context(), q.Queue, q.Limit)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failures": failures})
}
