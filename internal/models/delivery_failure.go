package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryFailure - задача доставки, исчерпавшая попытки или отклоненная каналом.
type DeliveryFailure struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	JobID          string    `gorm:"index;not null" json:"jobId"`
	Queue          string    `gorm:"type:varchar(64);not null" json:"queue"`
	NotificationID string    `gorm:"type:uuid;index" json:"notificationId"`
	Channel        Channel   `gorm:"type:varchar(16)" json:"channel"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError"`
	FailedAt       time.Time `gorm:"index;not null" json:"failedAt"`
}

func (f *DeliveryFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
