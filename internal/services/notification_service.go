package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"daohub_backend/internal/cache"
	"daohub_backend/internal/logger"
	"daohub_backend/internal/models"
	"daohub_backend/internal/queue"
	"daohub_backend/internal/repositories"
	"daohub_backend/internal/services/dto"
	"daohub_backend/pkg/apperrors"
	"daohub_backend/ws"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// RealtimePusher is the part of the session registry the services use.
type RealtimePusher interface {
	SendToUser(userID, event string, payload any) int
	BroadcastToRoom(room, event string, payload any) int
	Broadcast(event string, payload any) int
	JoinUserToDAO(userID, daoID string) int
	RemoveUserFromDAO(userID, daoID string) int
}

// DAOEvent is pushed to the dao room after a DAO fan-out so open DAO pages
// refresh without waiting for per-user notifications.
type DAOEvent struct {
	DAOID    string                  `json:"daoId"`
	Type     models.NotificationType `json:"type"`
	Title    string                  `json:"title"`
	Message  string                  `json:"message,omitempty"`
	Metadata map[string]interface{}  `json:"metadata,omitempty"`
	Notified int                     `json:"notified"`
}

// Announcement is a realtime-only notice to every connected session.
type Announcement struct {
	Title    string                 `json:"title"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Enqueuer is the part of the delivery queue the services use.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts queue.JobOptions) (*queue.Job, error)
}

type CreateOptions struct {
	SenderID *string
	Priority models.Priority
	// Channels defaults to realtime + inApp.
	Channels []models.Channel
	Metadata map[string]interface{}
	// TTL sets ExpiresAt; zero means the notification never expires.
	TTL time.Duration
}

type CreateResult struct {
	Notification *models.Notification
	// Warnings lists degraded steps (cache, queue); the record itself is stored.
	Warnings []string
	// Pushed is the number of live sessions reached by the immediate realtime push.
	Pushed int
}

type FanOutResult struct {
	Total    int
	Created  int
	Failed   int
	Failures map[string]string
	// IDs maps recipient id to the created notification id.
	IDs map[string]string
}

func (r *FanOutResult) Response() *dto.FanOutResponse {
	return &dto.FanOutResponse{Total: r.Total, Created: r.Created, Failed: r.Failed, Failures: r.Failures}
}

type NotificationService interface {
	Create(ctx context.Context, recipientID string, typ models.NotificationType, title, message string, opts CreateOptions) (*CreateResult, error)
	FanOut(ctx context.Context, recipientIDs []string, typ models.NotificationType, title, message string, opts CreateOptions) (*FanOutResult, error)
	FanOutToDAO(ctx context.Context, daoID string, exclude []string, typ models.NotificationType, title, message string, opts CreateOptions) (*FanOutResult, error)
	Announce(ctx context.Context, a Announcement) int

	List(ctx context.Context, userID string, q dto.ListQuery) (*dto.NotificationListResponse, error)
	Get(ctx context.Context, userID, id string) (*models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkManyRead(ctx context.Context, userID string, ids []string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	CleanupExpired(ctx context.Context, batch int) (int, error)
}

type NotificationConfig struct {
	FeedMaxLength     int
	FeedTTL           time.Duration
	FanoutConcurrency int
	Now               func() time.Time
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	membershipRepo   repositories.MembershipRepository
	cache            cache.Cache
	queue            Enqueuer
	pusher           RealtimePusher
	cfg              NotificationConfig
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	membershipRepo repositories.MembershipRepository,
	c cache.Cache,
	q Enqueuer,
	pusher RealtimePusher,
	cfg NotificationConfig,
) NotificationService {
	if cfg.FeedMaxLength <= 0 {
		cfg.FeedMaxLength = 100
	}
	if cfg.FanoutConcurrency <= 0 {
		cfg.FanoutConcurrency = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &notificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		membershipRepo:   membershipRepo,
		cache:            c,
		queue:            q,
		pusher:           pusher,
		cfg:              cfg,
	}
}

var defaultChannels = []models.Channel{models.ChannelRealtime, models.ChannelInApp}

func dbError(err error) error {
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, "notification", "Database error", http.StatusInternalServerError)
}

// now is truncated to microseconds so cached copies match what postgres returns.
func (s *notificationService) now() time.Time {
	return s.cfg.Now().UTC().Truncate(time.Microsecond)
}

// ---------------- Create / fan-out ----------------

func (s *notificationService) Create(ctx context.Context, recipientID string, typ models.NotificationType, title, message string, opts CreateOptions) (*CreateResult, error) {
	n, err := s.build(recipientID, typ, title, message, opts)
	if err != nil {
		return nil, err
	}

	exists, err := s.userRepo.Exists(ctx, recipientID)
	if err != nil {
		return nil, dbError(err)
	}
	if !exists {
		return nil, apperrors.ErrRecipientNotFound.WithDetails(map[string]string{"recipientId": recipientID})
	}

	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return nil, dbError(err)
	}

	log := logger.FromContext(ctx).With("notification_id", n.ID, "recipient_id", recipientID, "type", n.Type)
	result := &CreateResult{Notification: n}

	// Past this point the notification exists; failures only degrade delivery.
	if err := s.cacheItem(ctx, n); err != nil {
		log.Warn("notification cache write failed", "error", err)
		result.Warnings = append(result.Warnings, "cache unavailable: feed served from store")
	} else if err := s.prependFeed(ctx, n); err != nil {
		log.Warn("notification feed update failed", "error", err)
		result.Warnings = append(result.Warnings, "cache unavailable: feed served from store")
	}

	if n.HasChannel(models.ChannelRealtime) && s.pusher != nil {
		result.Pushed = s.pusher.SendToUser(recipientID, EventNotification, n)
		if result.Pushed > 0 {
			s.markDelivered(ctx, n.ID, models.ChannelRealtime)
		}
	}

	for _, ch := range n.Channels {
		channel := models.Channel(ch)
		_, err := s.queue.Enqueue(ctx, QueueName(channel), DeliveryPayload{
			NotificationID: n.ID,
			RecipientID:    recipientID,
			Channel:        channel,
		}, queue.JobOptions{
			JobID:          jobID(n.ID, channel),
			NotificationID: n.ID,
			Channel:        string(channel),
		})
		if err != nil {
			log.Warn("delivery enqueue failed", "channel", channel, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s delivery may be delayed", channel))
		}
	}

	log.Debug("notification created", "channels", []string(n.Channels), "pushed", result.Pushed)
	return result, nil
}

func (s *notificationService) build(recipientID string, typ models.NotificationType, title, message string, opts CreateOptions) (*models.Notification, error) {
	if recipientID == "" {
		return nil, apperrors.ValidationError(map[string]string{"recipientId": "This field is required"})
	}
	if title == "" {
		return nil, apperrors.ValidationError(map[string]string{"title": "This field is required"})
	}
	if !typ.Valid() {
		return nil, apperrors.ErrInvalidNotificationType.WithDetails(map[string]string{"type": string(typ)})
	}

	priority := opts.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.ValidationError(map[string]string{"priority": "Must be one of: high, medium, low"})
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = defaultChannels
	}
	seen := make(map[models.Channel]struct{}, len(channels))
	var chans []string
	for _, ch := range channels {
		if !ch.Valid() {
			return nil, apperrors.ErrInvalidChannel.WithDetails(map[string]string{"channel": string(ch)})
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		chans = append(chans, string(ch))
	}

	var metadata datatypes.JSON
	if len(opts.Metadata) > 0 {
		raw, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, apperrors.ValidationError(map[string]string{"metadata": "Must be a JSON object"})
		}
		metadata = datatypes.JSON(raw)
	}

	now := s.now()
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    opts.SenderID,
		Type:        typ,
		Title:       title,
		Message:     message,
		Metadata:    metadata,
		Priority:    priority,
		Channels:    chans,
		CreatedAt:   now,
	}
	if opts.TTL > 0 {
		exp := now.Add(opts.TTL)
		n.ExpiresAt = &exp
	}
	return n, nil
}

func (s *notificationService) FanOut(ctx context.Context, recipientIDs []string, typ models.NotificationType, title, message string, opts CreateOptions) (*FanOutResult, error) {
	if !typ.Valid() {
		return nil, apperrors.ErrInvalidNotificationType.WithDetails(map[string]string{"type": string(typ)})
	}

	seen := make(map[string]struct{}, len(recipientIDs))
	recipients := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}

	result := &FanOutResult{
		Total:    len(recipients),
		Failures: make(map[string]string),
		IDs:      make(map[string]string, len(recipients)),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.FanoutConcurrency)
	for _, recipientID := range recipients {
		recipientID := recipientID
		g.Go(func() error {
			var (
				res *CreateResult
				err = ctx.Err()
			)
			if err == nil {
				res, err = s.Create(ctx, recipientID, typ, title, message, opts)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures[recipientID] = err.Error()
				logger.CtxWarn(ctx, "fan-out recipient failed", "recipient_id", recipientID, "error", err)
				return nil
			}
			result.Created++
			result.IDs[recipientID] = res.Notification.ID
			return nil
		})
	}
	_ = g.Wait()

	logger.CtxInfo(ctx, "fan-out completed",
		"type", typ, "total", result.Total, "created", result.Created, "failed", result.Failed)
	return result, nil
}

func (s *notificationService) FanOutToDAO(ctx context.Context, daoID string, exclude []string, typ models.NotificationType, title, message string, opts CreateOptions) (*FanOutResult, error) {
	members, err := s.membershipRepo.MemberIDs(ctx, daoID)
	if err != nil {
		return nil, dbError(err)
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	recipients := members[:0:0]
	for _, id := range members {
		if _, ok := skip[id]; !ok {
			recipients = append(recipients, id)
		}
	}
	res, err := s.FanOut(ctx, recipients, typ, title, message, opts)
	if err != nil {
		return nil, err
	}
	if res.Created > 0 && s.pusher != nil {
		s.pusher.BroadcastToRoom(ws.DAORoom(daoID), EventDAO, DAOEvent{
			DAOID:    daoID,
			Type:     typ,
			Title:    title,
			Message:  message,
			Metadata: opts.Metadata,
			Notified: res.Created,
		})
	}
	return res, nil
}

// Announce pushes a system notice to every live session. Nothing is stored.
func (s *notificationService) Announce(ctx context.Context, a Announcement) int {
	if s.pusher == nil {
		return 0
	}
	sent := s.pusher.Broadcast(EventAnnouncement, a)
	logger.CtxInfo(ctx, "system announcement pushed", "title", a.Title, "sessions", sent)
	return sent
}

// ---------------- Cache helpers ----------------

func (s *notificationService) itemTTL(n *models.Notification) time.Duration {
	ttl := s.cfg.FeedTTL
	if n.ExpiresAt != nil {
		left := n.ExpiresAt.Sub(s.cfg.Now())
		if left <= 0 {
			return time.Millisecond
		}
		if ttl <= 0 || left < ttl {
			ttl = left
		}
	}
	return ttl
}

func (s *notificationService) cacheItem(ctx context.Context, n *models.Notification) error {
	return cache.SetJSON(ctx, s.cache, itemKey(n.RecipientID, n.ID), n, s.itemTTL(n))
}

// prependFeed adds n to a warm feed only; a cold feed is rebuilt by List.
func (s *notificationService) prependFeed(ctx context.Context, n *models.Notification) error {
	key := feedKey(n.RecipientID)
	warm, err := s.cache.Exists(ctx, key)
	if err != nil || !warm {
		return err
	}
	if _, err := s.cache.PushLeft(ctx, key, n.ID); err != nil {
		return err
	}
	if err := s.cache.Trim(ctx, key, 0, int64(s.cfg.FeedMaxLength-1)); err != nil {
		return err
	}
	if s.cfg.FeedTTL > 0 {
		_, err = s.cache.Expire(ctx, key, s.cfg.FeedTTL)
	}
	return err
}

func (s *notificationService) rebuildFeed(ctx context.Context, userID string) {
	ids, err := s.notificationRepo.RecentIDs(ctx, userID, s.cfg.FeedMaxLength, s.cfg.Now())
	if err != nil {
		logger.CtxWarn(ctx, "feed rebuild: store query failed", "user_id", userID, "error", err)
		return
	}
	key := feedKey(userID)
	if _, err := s.cache.Del(ctx, key); err != nil {
		logger.CtxWarn(ctx, "feed rebuild: cache unavailable", "user_id", userID, "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	// PushLeft puts the last value at the head, so push oldest first.
	reversed := make([]string, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	if _, err := s.cache.PushLeft(ctx, key, reversed...); err != nil {
		logger.CtxWarn(ctx, "feed rebuild failed", "user_id", userID, "error", err)
		return
	}
	if s.cfg.FeedTTL > 0 {
		_, _ = s.cache.Expire(ctx, key, s.cfg.FeedTTL)
	}
}

func (s *notificationService) forget(ctx context.Context, userID string, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(userID, id)
	}
	if _, err := s.cache.Del(ctx, keys...); err != nil {
		logger.CtxWarn(ctx, "cache invalidation failed", "user_id", userID, "error", err)
	}
}

func (s *notificationService) markDelivered(ctx context.Context, id string, ch models.Channel) {
	if err := s.cache.Set(ctx, deliveredKey(id, ch), "1", deliveredMarkerTTL); err != nil {
		logger.CtxWarn(ctx, "delivered marker write failed", "notification_id", id, "channel", ch, "error", err)
	}
}

// ---------------- Reads ----------------

func normalizeQuery(q dto.ListQuery) dto.ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

func (s *notificationService) List(ctx context.Context, userID string, q dto.ListQuery) (*dto.NotificationListResponse, error) {
	q = normalizeQuery(q)
	now := s.cfg.Now()

	if q.UnreadOnly {
		return s.listFromStore(ctx, userID, q, now, false)
	}

	total, err := s.notificationRepo.CountByRecipient(ctx, userID, now)
	if err != nil {
		return nil, dbError(err)
	}
	if total == 0 {
		return pageResponse(nil, 0, q, false), nil
	}

	if items, ok := s.listFromCache(ctx, userID, q, total, now); ok {
		return pageResponse(items, total, q, true), nil
	}
	return s.listFromStore(ctx, userID, q, now, true)
}

// listFromCache serves a page from the cached id list. It reports false when
// the list is missing or disagrees with the store, so the caller falls back.
func (s *notificationService) listFromCache(ctx context.Context, userID string, q dto.ListQuery, total int64, now time.Time) ([]*models.Notification, bool) {
	ids, err := s.cache.Range(ctx, feedKey(userID), 0, -1)
	if err != nil {
		logger.CtxWarn(ctx, "feed cache unavailable", "user_id", userID, "error", err)
		return nil, false
	}
	if len(ids) == 0 {
		return nil, false
	}

	start := (q.Page - 1) * q.Limit
	end := start + q.Limit
	complete := int64(len(ids)) == total
	full := len(ids) >= s.cfg.FeedMaxLength && total > int64(len(ids)) && end <= len(ids)
	if !complete && !full {
		return nil, false
	}
	if start >= len(ids) {
		return []*models.Notification{}, true
	}
	if end > len(ids) {
		end = len(ids)
	}
	pageIDs := ids[start:end]

	keys := make([]string, len(pageIDs))
	for i, id := range pageIDs {
		keys[i] = itemKey(userID, id)
	}
	cached, err := s.cache.GetMany(ctx, keys...)
	if err != nil {
		logger.CtxWarn(ctx, "item cache unavailable", "user_id", userID, "error", err)
		cached = map[string]string{}
	}

	byID := make(map[string]*models.Notification, len(pageIDs))
	var missing []string
	for i, id := range pageIDs {
		raw, ok := cached[keys[i]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var n models.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			missing = append(missing, id)
			continue
		}
		byID[id] = &n
	}

	if len(missing) > 0 {
		found, err := s.notificationRepo.FindByIDs(ctx, userID, missing)
		if err != nil {
			logger.CtxWarn(ctx, "batch fetch failed", "user_id", userID, "error", err)
			return nil, false
		}
		for i := range found {
			n := &found[i]
			byID[n.ID] = n
			if err := s.cacheItem(ctx, n); err != nil {
				logger.CtxDebug(ctx, "item cache write failed", "notification_id", n.ID, "error", err)
			}
		}
	}

	items := make([]*models.Notification, 0, len(pageIDs))
	for _, id := range pageIDs {
		n, ok := byID[id]
		if !ok || n.Expired(now) {
			// Stale id list.
			return nil, false
		}
		items = append(items, n)
	}
	return items, true
}

func (s *notificationService) listFromStore(ctx context.Context, userID string, q dto.ListQuery, now time.Time, repopulate bool) (*dto.NotificationListResponse, error) {
	rows, total, err := s.notificationRepo.FindByRecipient(ctx, userID, repositories.NotificationCriteria{
		UnreadOnly: q.UnreadOnly,
		Page:       q.Page,
		Limit:      q.Limit,
		Now:        now,
	})
	if err != nil {
		return nil, dbError(err)
	}

	items := make([]*models.Notification, len(rows))
	for i := range rows {
		items[i] = &rows[i]
	}

	if repopulate {
		s.rebuildFeed(ctx, userID)
		for _, n := range items {
			if err := s.cacheItem(ctx, n); err != nil {
				logger.CtxDebug(ctx, "item cache write failed", "notification_id", n.ID, "error", err)
				break
			}
		}
	}
	return pageResponse(items, total, q, false), nil
}

func pageResponse(items []*models.Notification, total int64, q dto.ListQuery, fromCache bool) *dto.NotificationListResponse {
	if items == nil {
		items = []*models.Notification{}
	}
	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return &dto.NotificationListResponse{
		Notifications: items,
		Total:         total,
		Page:          q.Page,
		PageSize:      q.Limit,
		TotalPages:    totalPages,
		HasMore:       int64(q.Page*q.Limit) < total,
		FromCache:     fromCache,
	}
}

// load fetches from the store and enforces ownership.
func (s *notificationService) load(ctx context.Context, userID, id string) (*models.Notification, error) {
	n, err := s.notificationRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, dbError(err)
	}
	if n.RecipientID != userID {
		logger.CtxWarn(ctx, "cross-user notification access rejected", "notification_id", id)
		return nil, apperrors.ErrNotificationForbidden
	}
	return n, nil
}

func (s *notificationService) Get(ctx context.Context, userID, id string) (*models.Notification, error) {
	var cached models.Notification
	if err := cache.GetJSON(ctx, s.cache, itemKey(userID, id), &cached); err == nil {
		if cached.Expired(s.cfg.Now()) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return &cached, nil
	}

	n, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n.Expired(s.cfg.Now()) {
		return nil, apperrors.ErrNotificationNotFound
	}
	if err := s.cacheItem(ctx, n); err != nil {
		logger.CtxDebug(ctx, "item cache write failed", "notification_id", id, "error", err)
	}
	return n, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.notificationRepo.CountUnread(ctx, userID, s.cfg.Now())
	if err != nil {
		return 0, dbError(err)
	}
	return count, nil
}

// ---------------- Read state ----------------

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	n, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}

	at := s.now()
	if _, err := s.notificationRepo.MarkAsRead(ctx, id, userID, at); err != nil {
		return nil, dbError(err)
	}
	n.Read = true
	n.ReadAt = &at

	s.forget(ctx, userID, id)
	s.pushReadState(ctx, userID, []string{id})
	return n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.notificationRepo.MarkAllAsRead(ctx, userID, s.now())
	if err != nil {
		return 0, dbError(err)
	}
	if updated > 0 {
		if _, err := s.cache.Flush(ctx, itemPrefix(userID)); err != nil {
			logger.CtxWarn(ctx, "cache invalidation failed", "user_id", userID, "error", err)
		}
		s.pushReadState(ctx, userID, nil)
	}
	return updated, nil
}

// MarkManyRead marks the caller's notifications among ids; ids owned by other
// users are ignored.
func (s *notificationService) MarkManyRead(ctx context.Context, userID string, ids []string) (int64, error) {
	unique := dedupe(ids)
	updated, err := s.notificationRepo.MarkManyAsRead(ctx, userID, unique, s.now())
	if err != nil {
		return 0, dbError(err)
	}
	if updated > 0 {
		s.forget(ctx, userID, unique...)
		s.pushReadState(ctx, userID, unique)
	}
	return updated, nil
}

func (s *notificationService) pushReadState(ctx context.Context, userID string, ids []string) {
	if s.pusher == nil {
		return
	}
	if len(ids) > 0 {
		s.pusher.SendToUser(userID, EventNotificationRead, map[string]any{"ids": ids})
	}
	if count, err := s.notificationRepo.CountUnread(ctx, userID, s.cfg.Now()); err == nil {
		s.pusher.SendToUser(userID, EventUnreadCount, map[string]int64{"count": count})
	}
}

// ---------------- Delete ----------------

func (s *notificationService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.load(ctx, userID, id); err != nil {
		return err
	}
	deleted, err := s.notificationRepo.Delete(ctx, id, userID)
	if err != nil {
		return dbError(err)
	}
	if !deleted {
		return apperrors.ErrNotificationNotFound
	}

	s.forget(ctx, userID, id)
	if _, err := s.cache.RemoveValue(ctx, feedKey(userID), id); err != nil {
		logger.CtxWarn(ctx, "feed update failed", "user_id", userID, "error", err)
	}
	if s.pusher != nil {
		s.pusher.SendToUser(userID, EventNotificationDeleted, map[string]string{"id": id})
	}
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.notificationRepo.DeleteByRecipient(ctx, userID)
	if err != nil {
		return 0, dbError(err)
	}
	if _, err := s.cache.Del(ctx, feedKey(userID)); err != nil {
		logger.CtxWarn(ctx, "feed invalidation failed", "user_id", userID, "error", err)
	}
	if _, err := s.cache.Flush(ctx, itemPrefix(userID)); err != nil {
		logger.CtxWarn(ctx, "cache invalidation failed", "user_id", userID, "error", err)
	}
	return deleted, nil
}

// CleanupExpired removes up to batch expired notifications from store and cache.
func (s *notificationService) CleanupExpired(ctx context.Context, batch int) (int, error) {
	deleted, err := s.notificationRepo.DeleteExpired(ctx, s.cfg.Now(), batch)
	if err != nil {
		return 0, dbError(err)
	}
	for _, n := range deleted {
		s.forget(ctx, n.RecipientID, n.ID)
		if _, err := s.cache.RemoveValue(ctx, feedKey(n.RecipientID), n.ID); err != nil {
			logger.CtxDebug(ctx, "feed update failed", "user_id", n.RecipientID, "error", err)
		}
	}
	return len(deleted), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
