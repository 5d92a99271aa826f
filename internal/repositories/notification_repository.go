package repositories

import (
	"context"
	"errors"
	"time"

	"daohub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationCriteria - фильтр ленты уведомлений одного получателя.
type NotificationCriteria struct {
	UnreadOnly bool
	Type       models.NotificationType
	Page       int
	Limit      int
	// Now excludes notifications expired at this instant; zero disables the filter.
	Now time.Time
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	// FindByIDs returns the recipient's notifications among ids, in any order.
	FindByIDs(ctx context.Context, recipientID string, ids []string) ([]models.Notification, error)
	FindByRecipient(ctx context.Context, recipientID string, criteria NotificationCriteria) ([]models.Notification, int64, error)
	RecentIDs(ctx context.Context, recipientID string, limit int, now time.Time) ([]string, error)
	CountByRecipient(ctx context.Context, recipientID string, now time.Time) (int64, error)

	// MarkAsRead returns false when nothing changed (already read or not owned).
	MarkAsRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	MarkAllAsRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	MarkManyAsRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)

	Delete(ctx context.Context, id, recipientID string) (bool, error)
	DeleteByRecipient(ctx context.Context, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string, now time.Time) (int64, error)
	// DeleteExpired removes up to limit expired notifications and returns them.
	DeleteExpired(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
}

type NotificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepositoryImpl) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepositoryImpl) FindByIDs(ctx context.Context, recipientID string, ids []string) ([]models.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Find(&out).Error
	return out, err
}

func notExpired(q *gorm.DB, now time.Time) *gorm.DB {
	if now.IsZero() {
		return q
	}
	return q.Where("expires_at IS NULL OR expires_at > ?", now)
}

func (r *NotificationRepositoryImpl) FindByRecipient(ctx context.Context, recipientID string, criteria NotificationCriteria) ([]models.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	query = notExpired(query, criteria.Now)

	if criteria.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if criteria.Type != "" {
		query = query.Where("type = ?", criteria.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := criteria.Page, criteria.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&notifications).Error
	return notifications, total, err
}

func (r *NotificationRepositoryImpl) RecentIDs(ctx context.Context, recipientID string, limit int, now time.Time) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	err := notExpired(query, now).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *NotificationRepositoryImpl) CountByRecipient(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
	err := notExpired(query, now).Count(&total).Error
	return total, err
}

func (r *NotificationRepositoryImpl) MarkAsRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) MarkManyAsRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND id IN ? AND is_read = ?", recipientID, ids, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) Delete(ctx context.Context, id, recipientID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *NotificationRepositoryImpl) DeleteByRecipient(ctx context.Context, recipientID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepositoryImpl) CountUnread(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false)
	err := notExpired(query, now).Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	db := r.db.WithContext(ctx)
	expired := db.Model(&models.Notification{}).
		Select("id").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Limit(limit)

	var deleted []models.Notification
	err := db.Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "recipient_id"}}}).
		Where("id IN (?)", expired).
		Delete(&deleted).Error
	return deleted, err
}
