package dto

import (
	"daohub_backend/internal/models"
)

// ---------------- Requests ----------------

type MarkMultipleReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
}

// SendNotificationRequest - ручная рассылка от оператора: конкретным
// пользователям или всем участникам DAO.
type SendNotificationRequest struct {
	RecipientIDs []string               `json:"recipientIds" validate:"required_without=DAOID,max=10000,dive,uuid"`
	DAOID        string                 `json:"daoId" validate:"omitempty,uuid"`
	Type         string                 `json:"type" validate:"required,notification_type"`
	Title        string                 `json:"title" validate:"required,max=200"`
	Message      string                 `json:"message" validate:"omitempty,max=2000"`
	Priority     string                 `json:"priority" validate:"omitempty,oneof=high medium low"`
	Channels     []string               `json:"channels" validate:"omitempty,dive,channel"`
	Metadata     map[string]interface{} `json:"metadata"`
	TTLSeconds   int                    `json:"ttlSeconds" validate:"gte=0"`
}

type ListQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// ---------------- Responses ----------------

type NotificationListResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int64                  `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
	HasMore       bool                   `json:"has_more"`

	FromCache bool `json:"-"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type CountResponse struct {
	Updated int64 `json:"updated"`
}

type FanOutResponse struct {
	Total    int               `json:"total"`
	Created  int               `json:"created"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}
