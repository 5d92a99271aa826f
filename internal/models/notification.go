package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification - одно уведомление одного получателя. Fan-out создает N записей.
type Notification struct {
	ID          string           `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID string           `gorm:"type:uuid;not null;index:idx_notifications_recipient_created,priority:1" json:"recipientId"`
	SenderID    *string          `gorm:"type:uuid" json:"senderId,omitempty"`
	Type        NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title       string           `gorm:"not null" json:"title"`
	Message     string           `json:"message"`
	Metadata    datatypes.JSON   `gorm:"type:jsonb" json:"metadata,omitempty"`
	Priority    Priority         `gorm:"type:varchar(10);default:'medium'" json:"priority"`
	Channels    pq.StringArray   `gorm:"type:text[]" json:"channels"`
	Read        bool             `gorm:"column:is_read;default:false;index" json:"read"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_notifications_recipient_created,priority:2,sort:desc" json:"createdAt"`
	ExpiresAt   *time.Time       `gorm:"index" json:"expiresAt,omitempty"`
}

// Expired reports whether the notification is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// HasChannel reports whether delivery over c was requested.
func (n *Notification) HasChannel(c Channel) bool {
	for _, ch := range n.Channels {
		if ch == string(c) {
			return true
		}
	}
	return false
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
