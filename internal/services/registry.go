package services

import (
	"daohub_backend/internal/email"
)

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	NotificationService NotificationService
	DeliveryService     DeliveryService
	MembershipService   MembershipService
	EmailService        email.Provider
}
