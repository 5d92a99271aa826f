// Package queue runs named in-process job queues with a worker pool per queue,
// bounded retries and exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"daohub_backend/internal/logger"
	"daohub_backend/pkg/apperrors"

	"github.com/google/uuid"
)

// Events are called outside the queue lock with job snapshots.
type Events struct {
	OnEnqueued  func(job Job)
	OnRetry     func(job Job, err error)
	OnCompleted func(job Job, took time.Duration)
	OnFailed    func(job Job, err error)
}

type Options struct {
	MaxAttempts      int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	HandlerTimeout   time.Duration
	PollInterval     time.Duration
	RemoveOnComplete bool
	Events           Events
	Now              func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:      3,
		Backoff:          time.Second,
		MaxBackoff:       time.Minute,
		HandlerTimeout:   15 * time.Second,
		PollInterval:     200 * time.Millisecond,
		RemoveOnComplete: true,
	}
}

type JobOptions struct {
	// JobID deduplicates: enqueueing an id that is still pending or active
	// returns the existing job.
	JobID          string
	NotificationID string
	Channel        string
	MaxAttempts    int
	Backoff        time.Duration
	Delay          time.Duration
	KeepOnComplete bool
}

type namedQueue struct {
	name        string
	handler     Handler
	concurrency int
	paused      bool
	wake        chan struct{}
}

type Queue struct {
	mu     sync.Mutex
	opts   Options
	queues map[string]*namedQueue
	jobs   map[string]*Job

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func New(opts Options) *Queue {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = def.HandlerTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		opts:   opts,
		queues: make(map[string]*namedQueue),
		jobs:   make(map[string]*Job),
	}
}

// Register adds a named queue. Must be called before Start.
func (q *Queue) Register(name string, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue %q: register after start", name)
	}
	if _, ok := q.queues[name]; ok {
		return fmt.Errorf("queue %q already registered", name)
	}
	q.queues[name] = &namedQueue{
		name:        name,
		handler:     handler,
		concurrency: concurrency,
		wake:        make(chan struct{}, concurrency),
	}
	return nil
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)

	for _, nq := range q.queues {
		for i := 0; i < nq.concurrency; i++ {
			q.wg.Add(1)
			go q.worker(nq, i)
		}
		logger.Info("queue started", "queue", nq.name, "concurrency", nq.concurrency)
	}
}

// Stop cancels running attempts, waits for the workers and rejects new jobs.
// Interrupted attempts go back to pending and are not counted.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	logger.Info("queue stopped")
}

func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts JobOptions) (*Job, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, apperrors.ErrQueueUnavailable.WithError(err)
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, apperrors.ErrQueueUnavailable.WithError(fmt.Errorf("queue %q is stopped", name))
	}
	nq, ok := q.queues[name]
	if !ok {
		q.mu.Unlock()
		return nil, apperrors.ErrQueueNotFound.WithError(fmt.Errorf("queue %q is not registered", name))
	}

	if opts.JobID != "" {
		if existing, ok := q.jobs[opts.JobID]; ok && !existing.Status.Terminal() {
			cp := existing.clone()
			q.mu.Unlock()
			return &cp, nil
		}
	}

	now := q.opts.Now()
	job := &Job{
		ID:             opts.JobID,
		Queue:          name,
		NotificationID: opts.NotificationID,
		Channel:        opts.Channel,
		Payload:        raw,
		MaxAttempts:    opts.MaxAttempts,
		Status:         StatusPending,
		NextAttemptAt:  now.Add(opts.Delay),
		CreatedAt:      now,
		UpdatedAt:      now,
		backoff:        opts.Backoff,
		keepOnComplete: opts.KeepOnComplete,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	if job.backoff <= 0 {
		job.backoff = q.opts.Backoff
	}
	q.jobs[job.ID] = job
	cp := job.clone()
	q.mu.Unlock()

	select {
	case nq.wake <- struct{}{}:
	default:
	}

	if q.opts.Events.OnEnqueued != nil {
		q.opts.Events.OnEnqueued(cp)
	}
	logger.CtxDebug(ctx, "job enqueued", "queue", name, "job_id", cp.ID)
	return &cp, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return append(json.RawMessage(nil), p...), nil
	case []byte:
		return append(json.RawMessage(nil), p...), nil
	default:
		return json.Marshal(p)
	}
}

func (q *Queue) worker(nq *namedQueue, n int) {
	defer q.wg.Done()

	timer := time.NewTimer(q.opts.PollInterval)
	defer timer.Stop()

	for {
		job, wait := q.claim(nq)
		if job != nil {
			q.run(nq, job)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-q.ctx.Done():
			return
		case <-nq.wake:
		case <-timer.C:
		}
	}
}

// claim picks the due pending job with the earliest NextAttemptAt and marks it
// active. Claiming under the lock gives each job at most one in-flight attempt.
func (q *Queue) claim(nq *namedQueue) (*Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wait := q.opts.PollInterval
	if nq.paused || q.ctx.Err() != nil {
		return nil, wait
	}

	now := q.opts.Now()
	var next *Job
	for _, job := range q.jobs {
		if job.Queue != nq.name || job.Status != StatusPending {
			continue
		}
		if job.NextAttemptAt.After(now) {
			if d := job.NextAttemptAt.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		if next == nil || job.NextAttemptAt.Before(next.NextAttemptAt) ||
			(job.NextAttemptAt.Equal(next.NextAttemptAt) && job.CreatedAt.Before(next.CreatedAt)) {
			next = job
		}
	}
	if next == nil {
		return nil, wait
	}

	next.Status = StatusActive
	next.Attempt++
	next.UpdatedAt = now
	cp := next.clone()
	return &cp, 0
}

func (q *Queue) run(nq *namedQueue, job *Job) {
	started := q.opts.Now()
	ctx, cancel := context.WithTimeout(q.ctx, q.opts.HandlerTimeout)
	err := invoke(ctx, nq.handler, job)
	cancel()

	q.finish(job.ID, err, q.opts.Now().Sub(started))
}

func invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) finish(id string, err error, took time.Duration) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := q.opts.Now()
	job.UpdatedAt = now

	// Shutdown interrupted the attempt: hand it back untouched.
	if err != nil && q.ctx.Err() != nil {
		job.Attempt--
		job.Status = StatusPending
		job.NextAttemptAt = now
		q.mu.Unlock()
		return
	}

	var (
		snapshot Job
		hook     func()
	)
	switch {
	case err == nil:
		job.Status = StatusDelivered
		job.LastError = ""
		job.FinishedAt = &now
		snapshot = job.clone()
		if q.opts.RemoveOnComplete && !job.keepOnComplete {
			delete(q.jobs, id)
		}
		if h := q.opts.Events.OnCompleted; h != nil {
			hook = func() { h(snapshot, took) }
		}

	case IsPermanent(err) || job.Attempt >= job.MaxAttempts:
		job.Status = StatusFailed
		job.LastError = err.Error()
		job.FinishedAt = &now
		snapshot = job.clone()
		if h := q.opts.Events.OnFailed; h != nil {
			hook = func() { h(snapshot, err) }
		}

	default:
		job.Status = StatusPending
		job.LastError = err.Error()
		job.NextAttemptAt = now.Add(q.backoff(job))
		snapshot = job.clone()
		if h := q.opts.Events.OnRetry; h != nil {
			hook = func() { h(snapshot, err) }
		}
	}
	q.mu.Unlock()

	logger.JobLog(snapshot.Queue, snapshot.ID, snapshot.Attempt, err, "status", snapshot.Status)
	if hook != nil {
		hook()
	}
}

// backoff doubles the base delay for each failed attempt: base, 2*base, 4*base...
func (q *Queue) backoff(job *Job) time.Duration {
	shift := job.Attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 30 {
		shift = 30
	}
	d := job.backoff << uint(shift)
	if q.opts.MaxBackoff > 0 && d > q.opts.MaxBackoff {
		d = q.opts.MaxBackoff
	}
	return d
}

// Names returns registered queue names in order.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.queues))
	for name := range q.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (q *Queue) Counts(name string) (Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	nq, ok := q.queues[name]
	if !ok {
		return Counts{}, apperrors.ErrQueueNotFound
	}
	counts := Counts{Paused: nq.paused}
	now := q.opts.Now()
	for _, job := range q.jobs {
		if job.Queue != name {
			continue
		}
		switch job.Status {
		case StatusPending:
			if job.NextAttemptAt.After(now) {
				counts.Delayed++
			} else {
				counts.Pending++
			}
		case StatusActive:
			counts.Active++
		case StatusDelivered:
			counts.Delivered++
		case StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// Pause stops new claims on name; running attempts finish normally.
func (q *Queue) Pause(name string) error {
	return q.setPaused(name, true)
}

func (q *Queue) Resume(name string) error {
	if err := q.setPaused(name, false); err != nil {
		return err
	}
	q.mu.Lock()
	nq := q.queues[name]
	q.mu.Unlock()
	for i := 0; i < nq.concurrency; i++ {
		select {
		case nq.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (q *Queue) setPaused(name string, paused bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	nq, ok := q.queues[name]
	if !ok {
		return apperrors.ErrQueueNotFound
	}
	nq.paused = paused
	return nil
}

// Clean removes terminal jobs with the given status finished more than
// olderThan ago. An empty status cleans both delivered and failed.
func (q *Queue) Clean(name string, olderThan time.Duration, status Status) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queues[name]; !ok {
		return 0, apperrors.ErrQueueNotFound
	}
	cutoff := q.opts.Now().Add(-olderThan)
	removed := 0
	for id, job := range q.jobs {
		if job.Queue != name || !job.Status.Terminal() || job.FinishedAt == nil {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		if job.FinishedAt.After(cutoff) {
			continue
		}
		delete(q.jobs, id)
		removed++
	}
	return removed, nil
}

func (q *Queue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Jobs lists jobs of a queue, oldest first. An empty status lists all.
func (q *Queue) Jobs(name string, status Status) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queues[name]; !ok {
		return nil, apperrors.ErrQueueNotFound
	}
	out := make([]Job, 0)
	for _, job := range q.jobs {
		if job.Queue != name || (status != "" && job.Status != status) {
			continue
		}
		out = append(out, job.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
