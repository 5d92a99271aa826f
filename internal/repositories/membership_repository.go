package repositories

import (
	"context"
	"time"

	"daohub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipRepository - проекция членства в DAO, обновляемая доменными событиями.
type MembershipRepository interface {
	MemberIDs(ctx context.Context, daoID string) ([]string, error)
	DAOIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, daoID, userID string) (bool, error)
	Add(ctx context.Context, daoID, userID, role string) error
	Remove(ctx context.Context, daoID, userID string) error
}

type MembershipRepositoryImpl struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &MembershipRepositoryImpl{db: db}
}

func (r *MembershipRepositoryImpl) MemberIDs(ctx context.Context, daoID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.DAOMember{}).
		Where("dao_id = ?", daoID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *MembershipRepositoryImpl) DAOIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.DAOMember{}).
		Where("user_id = ?", userID).
		Pluck("dao_id", &ids).Error
	return ids, err
}

func (r *MembershipRepositoryImpl) IsMember(ctx context.Context, daoID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DAOMember{}).
		Where("dao_id = ? AND user_id = ?", daoID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *MembershipRepositoryImpl) Add(ctx context.Context, daoID, userID, role string) error {
	if role == "" {
		role = "member"
	}
	member := models.DAOMember{DAOID: daoID, UserID: userID, Role: role, JoinedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
}

func (r *MembershipRepositoryImpl) Remove(ctx context.Context, daoID, userID string) error {
	return r.db.WithContext(ctx).
		Where("dao_id = ? AND user_id = ?", daoID, userID).
		Delete(&models.DAOMember{}).Error
}
