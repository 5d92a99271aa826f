package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"
	"daohub_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifications struct {
	services.NotificationService
	batches []int
	err     error
	calls   int
}

func (f *fakeNotifications) CleanupExpired(ctx context.Context, batch int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

type fakeCleaner struct {
	cleaned []string
}

func (f *fakeCleaner) Names() []string { return []string{"delivery:email", "delivery:realtime"} }

func (f *fakeCleaner) Clean(name string, olderThan time.Duration, status queue.Status) (int, error) {
	f.cleaned = append(f.cleaned, name+"/"+string(status)+"/"+olderThan.String())
	return 1, nil
}

type fakeFailures struct {
	repositories.DeliveryFailureRepository
	cutoff time.Time
}

func (f *fakeFailures) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	f.cutoff = t
	return 2, nil
}

func TestRunOnce(t *testing.T) {
	notifications := &fakeNotifications{batches: []int{10, 10, 3}}
	cleaner := &fakeCleaner{}
	failures := &fakeFailures{}
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	w := NewMaintenanceWorker(notifications, cleaner, failures, MaintenanceConfig{
		CleanupBatch:     10,
		JobRetention:     time.Hour,
		FailureRetention: 24 * time.Hour,
	})
	w.now = func() time.Time { return now }

	w.RunOnce(context.Background())

	assert.Equal(t, 3, notifications.calls)
	assert.Equal(t, []string{
		"delivery:email/delivered/1h0m0s",
		"delivery:email/failed/1h0m0s",
		"delivery:realtime/delivered/1h0m0s",
		"delivery:realtime/failed/1h0m0s",
	}, cleaner.cleaned)
	assert.Equal(t, now.Add(-24*time.Hour), failures.cutoff)
}

func TestRunOnce_CleanupErrorStopsBatching(t *testing.T) {
	notifications := &fakeNotifications{err: errors.New("db down")}
	w := NewMaintenanceWorker(notifications, &fakeCleaner{}, &fakeFailures{}, MaintenanceConfig{CleanupBatch: 10})

	w.RunOnce(context.Background())
	assert.Equal(t, 1, notifications.calls)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	w := NewMaintenanceWorker(&fakeNotifications{}, &fakeCleaner{}, &fakeFailures{}, MaintenanceConfig{Schedule: "every now and then"})
	require.Error(t, w.Start(context.Background()))
}

func TestStart_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewMaintenanceWorker(&fakeNotifications{}, &fakeCleaner{}, &fakeFailures{}, MaintenanceConfig{Schedule: "@every 1h"})
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
}
