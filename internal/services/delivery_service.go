package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daohub_backend/internal/cache"
	"daohub_backend/internal/email"
	"daohub_backend/internal/logger"
	"daohub_backend/internal/models"
	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"
	"daohub_backend/pkg/apperrors"
)

const deliveredMarkerTTL = 24 * time.Hour

// DeliveryPayload is the job payload of every delivery queue.
type DeliveryPayload struct {
	NotificationID string         `json:"notificationId"`
	RecipientID    string         `json:"recipientId"`
	Channel        models.Channel `json:"channel"`
}

type DeliveryService interface {
	// Register installs one handler per channel queue.
	Register(q *queue.Queue, concurrency int) error
	// RecordFailure persists a job that will not be retried again.
	RecordFailure(job queue.Job, err error)

	DeliverRealtime(ctx context.Context, job *queue.Job) error
	DeliverEmail(ctx context.Context, job *queue.Job) error
	DeliverInApp(ctx context.Context, job *queue.Job) error
}

type deliveryService struct {
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	failureRepo      repositories.DeliveryFailureRepository
	cache            cache.Cache
	pusher           RealtimePusher
	mailer           email.Provider
	templates        email.TemplateRenderer
	sendTimeout      time.Duration
	now              func() time.Time
}

type DeliveryConfig struct {
	SendTimeout time.Duration
	Now         func() time.Time
}

func NewDeliveryService(
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	failureRepo repositories.DeliveryFailureRepository,
	c cache.Cache,
	pusher RealtimePusher,
	mailer email.Provider,
	templates email.TemplateRenderer,
	cfg DeliveryConfig,
) DeliveryService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &deliveryService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		failureRepo:      failureRepo,
		cache:            c,
		pusher:           pusher,
		mailer:           mailer,
		templates:        templates,
		sendTimeout:      cfg.SendTimeout,
		now:              cfg.Now,
	}
}

func (s *deliveryService) Register(q *queue.Queue, concurrency int) error {
	handlers := map[models.Channel]queue.Handler{
		models.ChannelRealtime: s.DeliverRealtime,
		models.ChannelEmail:    s.DeliverEmail,
		models.ChannelInApp:    s.DeliverInApp,
	}
	for _, ch := range models.AllChannels {
		if err := q.Register(QueueName(ch), concurrency, handlers[ch]); err != nil {
			return fmt.Errorf("register %s: %w", ch, err)
		}
	}
	return nil
}

// prepare decodes the job and loads its notification. A nil notification with
// a nil error means there is nothing left to deliver.
func (s *deliveryService) prepare(ctx context.Context, job *queue.Job) (*DeliveryPayload, *models.Notification, error) {
	var p DeliveryPayload
	if err := job.Decode(&p); err != nil {
		return nil, nil, queue.Permanent(fmt.Errorf("decode payload: %w", err))
	}
	if p.NotificationID == "" || p.RecipientID == "" {
		return nil, nil, queue.Permanent(errors.New("payload without notification or recipient"))
	}

	if done, err := s.cache.Exists(ctx, deliveredKey(p.NotificationID, p.Channel)); err == nil && done {
		logger.JobLog(job.Queue, job.ID, job.Attempt, nil, "skipped", "already_delivered")
		return &p, nil, nil
	}

	n, err := s.notificationRepo.FindByID(ctx, p.NotificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			logger.JobLog(job.Queue, job.ID, job.Attempt, nil, "skipped", "notification_deleted")
			return &p, nil, nil
		}
		return nil, nil, err
	}
	if n.Expired(s.now()) {
		logger.JobLog(job.Queue, job.ID, job.Attempt, nil, "skipped", "notification_expired")
		return &p, nil, nil
	}
	return &p, n, nil
}

func (s *deliveryService) markDelivered(ctx context.Context, p *DeliveryPayload) {
	if err := s.cache.Set(ctx, deliveredKey(p.NotificationID, p.Channel), "1", deliveredMarkerTTL); err != nil {
		logger.CtxDebug(ctx, "delivered marker write failed", "notification_id", p.NotificationID, "error", err)
	}
}

// DeliverRealtime pushes to live sessions. An offline recipient is not an
// error: the notification stays in the feed.
func (s *deliveryService) DeliverRealtime(ctx context.Context, job *queue.Job) error {
	p, n, err := s.prepare(ctx, job)
	if err != nil || n == nil {
		return err
	}
	sent := s.pusher.SendToUser(p.RecipientID, EventNotification, n)
	if sent > 0 {
		s.markDelivered(ctx, p)
	}
	logger.JobLog(job.Queue, job.ID, job.Attempt, nil, "sessions", sent)
	return nil
}

func (s *deliveryService) DeliverEmail(ctx context.Context, job *queue.Job) error {
	p, n, err := s.prepare(ctx, job)
	if err != nil || n == nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, p.RecipientID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return queue.Permanent(apperrors.ChannelDeliveryRejected(string(models.ChannelEmail), err))
		}
		return err
	}
	if !user.EmailNotifications {
		logger.JobLog(job.Queue, job.ID, job.Attempt, nil, "skipped", "email_disabled")
		return nil
	}

	data := email.TemplateData{
		"Title":     n.Title,
		"Message":   n.Message,
		"Recipient": user.Email,
		"Link":      metadataString(n, "link"),
	}
	body, err := s.templates.Render(email.NotificationTemplate, data)
	if err != nil {
		return queue.Permanent(fmt.Errorf("render email: %w", err))
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	err = s.mailer.Send(sendCtx, &email.Email{
		To:       user.Email,
		Subject:  n.Title,
		Body:     n.Message,
		HTMLBody: body,
	})
	if err != nil {
		if email.IsPermanent(err) {
			return queue.Permanent(apperrors.ChannelDeliveryRejected(string(models.ChannelEmail), err))
		}
		return apperrors.ChannelDeliveryFailed(string(models.ChannelEmail), err)
	}

	s.markDelivered(ctx, p)
	return nil
}

// DeliverInApp refreshes the unread badge; the feed entry was written on create.
func (s *deliveryService) DeliverInApp(ctx context.Context, job *queue.Job) error {
	p, n, err := s.prepare(ctx, job)
	if err != nil || n == nil {
		return err
	}
	count, err := s.notificationRepo.CountUnread(ctx, p.RecipientID, s.now())
	if err != nil {
		return err
	}
	s.pusher.SendToUser(p.RecipientID, EventUnreadCount, map[string]int64{"count": count})
	s.markDelivered(ctx, p)
	return nil
}

func (s *deliveryService) RecordFailure(job queue.Job, err error) {
	msg := job.LastError
	if err != nil {
		msg = err.Error()
	}
	f := &models.DeliveryFailure{
		JobID:          job.ID,
		Queue:          job.Queue,
		NotificationID: job.NotificationID,
		Channel:        models.Channel(job.Channel),
		Attempts:       job.Attempt,
		LastError:      msg,
		FailedAt:       s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if werr := s.failureRepo.Create(ctx, f); werr != nil {
		logger.Error("failed to persist delivery failure", "job_id", job.ID, "queue", job.Queue, "error", werr)
	}
}

func metadataString(n *models.Notification, key string) string {
	if len(n.Metadata) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(n.Metadata, &m); err != nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
