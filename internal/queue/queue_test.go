package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"daohub_backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		MaxAttempts:      3,
		Backoff:          5 * time.Millisecond,
		MaxBackoff:       50 * time.Millisecond,
		HandlerTimeout:   time.Second,
		PollInterval:     5 * time.Millisecond,
		RemoveOnComplete: true,
	}
}

func startQueue(t *testing.T, opts Options, name string, h Handler) *Queue {
	t.Helper()
	q := New(opts)
	require.NoError(t, q.Register(name, 2, h))
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func waitStatus(t *testing.T, q *Queue, id string, status Status) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = q.Job(id)
		return ok && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestAlwaysFailingHandlerStopsAtMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	var failed atomic.Int32
	opts := testOptions()
	opts.Events.OnFailed = func(job Job, err error) { failed.Add(1) }

	q := startQueue(t, opts, "delivery:email", func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return errors.New("smtp unavailable")
	})

	job, err := q.Enqueue(context.Background(), "delivery:email", map[string]string{"to": "a@b.io"}, JobOptions{})
	require.NoError(t, err)

	final := waitStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, 3, final.Attempt)
	assert.Equal(t, "smtp unavailable", final.LastError)
	assert.NotNil(t, final.FinishedAt)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load(), "no attempts after failure")
	assert.Equal(t, int32(1), failed.Load())
}

func TestFailTwiceThenSucceed(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, testOptions(), "delivery:email", func(ctx context.Context, job *Job) error {
		if calls.Add(1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	job, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{KeepOnComplete: true})
	require.NoError(t, err)

	final := waitStatus(t, q, job.ID, StatusDelivered)
	assert.Equal(t, 3, final.Attempt)
	assert.Empty(t, final.LastError)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, testOptions(), "delivery:email", func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return Permanent(errors.New("invalid address"))
	})

	job, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{})
	require.NoError(t, err)

	final := waitStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, 1, final.Attempt)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompletedJobsAreRemovedByDefault(t *testing.T) {
	done := make(chan string, 1)
	opts := testOptions()
	opts.Events.OnCompleted = func(job Job, took time.Duration) { done <- job.ID }

	q := startQueue(t, opts, "delivery:realtime", func(ctx context.Context, job *Job) error {
		return nil
	})

	job, err := q.Enqueue(context.Background(), "delivery:realtime", nil, JobOptions{})
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not completed")
	}
	_, ok := q.Job(job.ID)
	assert.False(t, ok)
}

func TestSingleInFlightAttempt(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var calls atomic.Int32

	opts := testOptions()
	opts.Backoff = time.Millisecond
	q := New(opts)
	require.NoError(t, q.Register("delivery:email", 8, func(ctx context.Context, job *Job) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		calls.Add(1)
		return errors.New("retry")
	}))
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	job, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{})
	require.NoError(t, err)

	waitStatus(t, q, job.ID, StatusFailed)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDuplicateJobIDReturnsExisting(t *testing.T) {
	q := New(testOptions())
	require.NoError(t, q.Register("delivery:email", 1, func(ctx context.Context, job *Job) error { return nil }))

	first, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{JobID: "n1:email"})
	require.NoError(t, err)
	second, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{JobID: "n1:email"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	counts, err := q.Counts("delivery:email")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
}

func TestEnqueueUnavailable(t *testing.T) {
	q := New(testOptions())
	require.NoError(t, q.Register("delivery:email", 1, func(ctx context.Context, job *Job) error { return nil }))

	_, err := q.Enqueue(context.Background(), "delivery:sms", nil, JobOptions{})
	assert.True(t, apperrors.Is(err, apperrors.ErrQueueNotFound))
	assert.False(t, apperrors.Is(err, apperrors.ErrQueueUnavailable))

	q.Start(context.Background())
	q.Stop()
	_, err = q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{})
	assert.True(t, apperrors.Is(err, apperrors.ErrQueueUnavailable))
}

func TestBackoffSchedule(t *testing.T) {
	opts := testOptions()
	opts.Backoff = time.Second
	opts.MaxBackoff = 3 * time.Second
	q := New(opts)

	job := &Job{backoff: time.Second}
	var got []time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		job.Attempt = attempt
		got = append(got, q.backoff(job))
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, got)
}

func TestDelayedJobAndRetryTiming(t *testing.T) {
	var mu sync.Mutex
	var attempts []time.Time

	opts := testOptions()
	opts.Backoff = 40 * time.Millisecond
	q := startQueue(t, opts, "delivery:email", func(ctx context.Context, job *Job) error {
		mu.Lock()
		attempts = append(attempts, time.Now())
		n := len(attempts)
		mu.Unlock()
		if n == 1 {
			return errors.New("first")
		}
		return nil
	})

	job, err := q.Enqueue(context.Background(), "delivery:email", nil, JobOptions{KeepOnComplete: true})
	require.NoError(t, err)
	waitStatus(t, q, job.ID, StatusDelivered)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 2)
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), 40*time.Millisecond)
}

func TestPauseResumeAndClean(t *testing.T) {
	var calls atomic.Int32
	q := New(testOptions())
	require.NoError(t, q.Register("delivery:inApp", 1, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, q.Pause("delivery:inApp"))
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	job, err := q.Enqueue(context.Background(), "delivery:inApp", nil, JobOptions{KeepOnComplete: true})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, calls.Load())
	counts, err := q.Counts("delivery:inApp")
	require.NoError(t, err)
	assert.True(t, counts.Paused)
	assert.Equal(t, 1, counts.Pending)

	require.NoError(t, q.Resume("delivery:inApp"))
	waitStatus(t, q, job.ID, StatusDelivered)

	jobs, err := q.Jobs("delivery:inApp", StatusDelivered)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	removed, err := q.Clean("delivery:inApp", 0, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = q.Clean("unknown", 0, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrQueueNotFound))
}

func TestHandlerPanicIsRetryable(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, testOptions(), "delivery:realtime", func(ctx context.Context, job *Job) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})

	job, err := q.Enqueue(context.Background(), "delivery:realtime", nil, JobOptions{KeepOnComplete: true})
	require.NoError(t, err)
	final := waitStatus(t, q, job.ID, StatusDelivered)
	assert.Equal(t, 2, final.Attempt)
}

func TestPayloadDecode(t *testing.T) {
	received := make(chan map[string]string, 1)
	q := startQueue(t, testOptions(), "delivery:email", func(ctx context.Context, job *Job) error {
		var p map[string]string
		if err := job.Decode(&p); err != nil {
			return Permanent(err)
		}
		received <- p
		return nil
	})

	_, err := q.Enqueue(context.Background(), "delivery:email", map[string]string{"notificationId": "n1"}, JobOptions{})
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, "n1", p["notificationId"])
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}
