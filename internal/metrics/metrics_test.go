package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daohub_backend/internal/queue"
	"daohub_backend/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEventsCountAndChain(t *testing.T) {
	var failed []string
	events := QueueEvents(queue.Events{
		OnFailed: func(job queue.Job, err error) { failed = append(failed, job.ID) },
	})
	job := queue.Job{ID: "j1", Queue: "delivery:metrics-test"}

	before := testutil.ToFloat64(jobsFinished.WithLabelValues(job.Queue, "failed"))
	events.OnEnqueued(job)
	events.OnRetry(job, errors.New("boom"))
	events.OnCompleted(job, 10*time.Millisecond)
	events.OnFailed(job, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(jobsEnqueued.WithLabelValues(job.Queue)))
	assert.Equal(t, 1.0, testutil.ToFloat64(jobRetries.WithLabelValues(job.Queue)))
	assert.Equal(t, before+1, testutil.ToFloat64(jobsFinished.WithLabelValues(job.Queue, "failed")))
	assert.Equal(t, []string{"j1"}, failed)
}

func TestRegisterIsIdempotentAndServed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	q := queue.New(queue.DefaultOptions())
	require.NoError(t, q.Register("delivery:realtime", 1, func(ctx context.Context, job *queue.Job) error { return nil }))
	registry := ws.NewRegistry()

	require.NoError(t, Register(q, registry))
	require.NoError(t, Register(q, registry))

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ws_connections")
	assert.Contains(t, w.Body.String(), `delivery_queue_jobs{queue="delivery:realtime",state="pending"} 0`)
}
