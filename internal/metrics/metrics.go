// Package metrics exposes Prometheus collectors for the delivery pipeline.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"daohub_backend/internal/queue"
	"daohub_backend/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_enqueued_total",
			Help: "Delivery jobs accepted by the queue",
		},
		[]string{"queue"},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_jobs_finished_total",
			Help: "Delivery jobs that reached a terminal status",
		},
		[]string{"queue", "status"},
	)

	jobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_job_retries_total",
			Help: "Failed delivery attempts that were scheduled for retry",
		},
		[]string{"queue"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_job_duration_seconds",
			Help:    "Duration of successful delivery attempts",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5, 15},
		},
		[]string{"queue"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"method", "route"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

// QueueEvents records job lifecycle metrics and then calls next.
func QueueEvents(next queue.Events) queue.Events {
	return queue.Events{
		OnEnqueued: func(job queue.Job) {
			jobsEnqueued.WithLabelValues(job.Queue).Inc()
			if next.OnEnqueued != nil {
				next.OnEnqueued(job)
			}
		},
		OnRetry: func(job queue.Job, err error) {
			jobRetries.WithLabelValues(job.Queue).Inc()
			if next.OnRetry != nil {
				next.OnRetry(job, err)
			}
		},
		OnCompleted: func(job queue.Job, took time.Duration) {
			jobsFinished.WithLabelValues(job.Queue, string(queue.StatusDelivered)).Inc()
			jobDuration.WithLabelValues(job.Queue).Observe(took.Seconds())
			if next.OnCompleted != nil {
				next.OnCompleted(job, took)
			}
		},
		OnFailed: func(job queue.Job, err error) {
			jobsFinished.WithLabelValues(job.Queue, string(queue.StatusFailed)).Inc()
			if next.OnFailed != nil {
				next.OnFailed(job, err)
			}
		},
	}
}

// QueueDepth reports per-queue job counts at scrape time.
type QueueDepth struct {
	q    *queue.Queue
	desc *prometheus.Desc
}

func NewQueueDepth(q *queue.Queue) *QueueDepth {
	return &QueueDepth{
		q: q,
		desc: prometheus.NewDesc("delivery_queue_jobs", "Jobs currently held by the queue",
			[]string{"queue", "state"}, nil),
	}
}

func (c *QueueDepth) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *QueueDepth) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.q.Names() {
		counts, err := c.q.Counts(name)
		if err != nil {
			continue
		}
		for state, v := range map[string]int{
			"pending":   counts.Pending,
			"delayed":   counts.Delayed,
			"active":    counts.Active,
			"delivered": counts.Delivered,
			"failed":    counts.Failed,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(v), name, state)
		}
	}
}

// Register adds collectors that read live state from q and the session registry.
func Register(q *queue.Queue, registry *ws.Registry) error {
	collectors := []prometheus.Collector{
		NewQueueDepth(q),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open websocket connections",
		}, func() float64 { return float64(registry.Stats().Connections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ws_online_users",
			Help: "Users with at least one authenticated connection",
		}, func() float64 { return float64(registry.Stats().Users) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ws_rooms",
			Help: "Rooms with at least one member",
		}, func() float64 { return float64(registry.Stats().Rooms) }),
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// RateLimited counts a rejected request.
func RateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}

// GinMiddleware records request count and latency by matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
