package repositories

import (
	"daohub_backend/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the tables owned by this service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.DAOMember{},
		&models.Notification{},
		&models.DeliveryFailure{},
	)
}
