package repositories

import (
	"context"
	"time"

	"daohub_backend/internal/models"

	"gorm.io/gorm"
)

type DeliveryFailureRepository interface {
	Create(ctx context.Context, f *models.DeliveryFailure) error
	List(ctx context.Context, queue string, limit int) ([]models.DeliveryFailure, error)
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}

type DeliveryFailureRepositoryImpl struct {
	db *gorm.DB
}

func NewDeliveryFailureRepository(db *gorm.DB) DeliveryFailureRepository {
	return &DeliveryFailureRepositoryImpl{db: db}
}

func (r *DeliveryFailureRepositoryImpl) Create(ctx context.Context, f *models.DeliveryFailure) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *DeliveryFailureRepositoryImpl) List(ctx context.Context, queue string, limit int) ([]models.DeliveryFailure, error) {
	query := r.db.WithContext(ctx).Model(&models.DeliveryFailure{})
	if queue != "" {
		query = query.Where("queue = ?", queue)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.DeliveryFailure
	err := query.Order("failed_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *DeliveryFailureRepositoryImpl) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("failed_at < ?", t).Delete(&models.DeliveryFailure{})
	return result.RowsAffected, result.Error
}
