package apperrors

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// --- Notifications ---

var ErrNotificationNotFound = New(
	CodeNotFound,
	"notification",
	"Notification not found",
	http.StatusNotFound,
)

// ErrNotificationForbidden - уведомление принадлежит другому пользователю.
var ErrNotificationForbidden = New(
	CodeForbidden,
	"notification",
	"Notification belongs to another user",
	http.StatusForbidden,
)

var ErrRecipientNotFound = New(
	CodeNotFound,
	"notification",
	"Recipient not found",
	http.StatusNotFound,
)

var ErrInvalidNotificationType = New(
	CodeValidationFailed,
	"notification",
	"Unknown notification type",
	http.StatusBadRequest,
)

var ErrInvalidChannel = New(
	CodeValidationFailed,
	"notification",
	"Unknown delivery channel",
	http.StatusBadRequest,
)

// --- Delivery infrastructure ---

// ErrCacheUnavailable is reported only by the readiness check; notification
// services fall back to the store instead.
var ErrCacheUnavailable = New(
	CodeCacheUnavailable,
	"cache",
	"Cache is unavailable",
	http.StatusServiceUnavailable,
)

var ErrDatabaseUnavailable = New(
	CodeDatabaseError,
	"database",
	"Database is unavailable",
	http.StatusServiceUnavailable,
)

var ErrQueueUnavailable = New(
	CodeQueueUnavailable,
	"queue",
	"Delivery queue is unavailable",
	http.StatusServiceUnavailable,
)

var ErrQueueNotFound = New(
	CodeNotFound,
	"queue",
	"Queue not found",
	http.StatusNotFound,
)

// RateLimited builds the 429 error carrying reset time for client backoff.
func RateLimited(resetAt time.Time) *AppError {
	retryAfter := int(math.Ceil(time.Until(resetAt).Seconds()))
	if retryAfter < 0 {
		retryAfter = 0
	}
	return New(CodeRateLimited, "rate_limit", "Too many requests", http.StatusTooManyRequests).
		WithDetails(map[string]interface{}{
			"reset_at":    resetAt.UTC().Format(time.RFC3339),
			"retry_after": retryAfter,
		})
}

// ChannelDeliveryFailed - временная ошибка канала, задача будет повторена.
func ChannelDeliveryFailed(channel string, err error) *AppError {
	return Wrap(err, CodeChannelDeliveryFailed, "delivery",
		fmt.Sprintf("Delivery over %s failed", channel), http.StatusBadGateway)
}

// ChannelDeliveryRejected - постоянная ошибка канала (например, неверный адрес), без повторов.
func ChannelDeliveryRejected(channel string, err error) *AppError {
	return Wrap(err, CodeChannelDeliveryRejected, "delivery",
		fmt.Sprintf("Delivery over %s rejected", channel), http.StatusUnprocessableEntity)
}
