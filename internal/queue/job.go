package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Job is one delivery attempt chain for a (notification, channel) pair.
// Only the Queue mutates jobs; callers always receive copies.
type Job struct {
	ID             string          `json:"id"`
	Queue          string          `json:"queue"`
	NotificationID string          `json:"notificationId,omitempty"`
	Channel        string          `json:"channel,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"maxAttempts"`
	Status         Status          `json:"status"`
	NextAttemptAt  time.Time       `json:"nextAttemptAt"`
	LastError      string          `json:"lastError,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`

	backoff        time.Duration
	keepOnComplete bool
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

func (j *Job) clone() Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

// Handler delivers one job. A nil error completes it; Permanent errors fail it
// without retry; any other error schedules a retry while attempts remain.
type Handler func(ctx context.Context, job *Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Counts is a snapshot of one named queue.
type Counts struct {
	Pending   int  `json:"pending"`
	Delayed   int  `json:"delayed"`
	Active    int  `json:"active"`
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Paused    bool `json:"paused"`
}
