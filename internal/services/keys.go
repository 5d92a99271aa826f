package services

import (
	"daohub_backend/internal/models"
)

// Realtime events pushed to websocket clients.
const (
	EventNotification        = "notification"
	EventUnreadCount         = "unread_count"
	EventNotificationRead    = "notification_read"
	EventNotificationDeleted = "notification_deleted"
	EventDAO                 = "dao_event"
	EventAnnouncement        = "system_announcement"
)

func feedKey(userID string) string {
	return "notifications:feed:" + userID
}

func itemPrefix(userID string) string {
	return "notifications:item:" + userID + ":"
}

func itemKey(userID, id string) string {
	return itemPrefix(userID) + id
}

func deliveredKey(notificationID string, ch models.Channel) string {
	return "notifications:delivered:" + notificationID + ":" + string(ch)
}

// QueueName is the delivery queue for a channel.
func QueueName(ch models.Channel) string {
	return "delivery:" + string(ch)
}

func jobID(notificationID string, ch models.Channel) string {
	return notificationID + ":" + string(ch)
}
