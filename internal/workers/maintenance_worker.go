package workers

import (
	"context"
	"time"

	"daohub_backend/internal/logger"
	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"
	"daohub_backend/internal/services"

	"github.com/robfig/cron/v3"
)

// QueueCleaner is the part of the delivery queue the worker prunes.
type QueueCleaner interface {
	Names() []string
	Clean(name string, olderThan time.Duration, status queue.Status) (int, error)
}

type MaintenanceConfig struct {
	Schedule         string
	CleanupBatch     int
	JobRetention     time.Duration
	FailureRetention time.Duration
}

// MaintenanceWorker removes expired notifications, finished jobs and old
// delivery failure records on a cron schedule.
type MaintenanceWorker struct {
	notifications services.NotificationService
	queue         QueueCleaner
	failures      repositories.DeliveryFailureRepository
	cfg           MaintenanceConfig
	cron          *cron.Cron
	now           func() time.Time
}

func NewMaintenanceWorker(
	notifications services.NotificationService,
	q QueueCleaner,
	failures repositories.DeliveryFailureRepository,
	cfg MaintenanceConfig,
) *MaintenanceWorker {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	if cfg.CleanupBatch <= 0 {
		cfg.CleanupBatch = 1000
	}
	return &MaintenanceWorker{
		notifications: notifications,
		queue:         q,
		failures:      failures,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Start schedules RunOnce. Jobs stop when ctx is cancelled.
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := w.cron.AddFunc(w.cfg.Schedule, func() { w.RunOnce(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	logger.Info("maintenance worker started", "schedule", w.cfg.Schedule)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop waits for a running pass to finish.
func (w *MaintenanceWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *MaintenanceWorker) RunOnce(ctx context.Context) {
	w.cleanupNotifications(ctx)
	w.cleanQueues()
	w.pruneFailures(ctx)
}

// cleanupNotifications deletes expired notifications batch by batch until a
// short batch signals there is nothing left.
func (w *MaintenanceWorker) cleanupNotifications(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := w.notifications.CleanupExpired(ctx, w.cfg.CleanupBatch)
		if err != nil {
			logger.WorkerLog("maintenance", "cleanup_expired", err, "removed", total)
			return
		}
		total += n
		if n < w.cfg.CleanupBatch {
			break
		}
	}
	if total > 0 {
		logger.WorkerLog("maintenance", "cleanup_expired", nil, "removed", total)
	}
}

func (w *MaintenanceWorker) cleanQueues() {
	if w.queue == nil || w.cfg.JobRetention <= 0 {
		return
	}
	for _, name := range w.queue.Names() {
		for _, status := range []queue.Status{queue.StatusDelivered, queue.StatusFailed} {
			n, err := w.queue.Clean(name, w.cfg.JobRetention, status)
			if err != nil || n > 0 {
				logger.WorkerLog("maintenance", "clean_queue", err, "queue", name, "status", status, "removed", n)
			}
		}
	}
}

func (w *MaintenanceWorker) pruneFailures(ctx context.Context) {
	if w.failures == nil || w.cfg.FailureRetention <= 0 {
		return
	}
	n, err := w.failures.DeleteOlderThan(ctx, w.now().Add(-w.cfg.FailureRetention))
	if err != nil || n > 0 {
		logger.WorkerLog("maintenance", "prune_failures", err, "removed", n)
	}
}
