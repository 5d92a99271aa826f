package auth

import "errors"

// RBAC роли и разрешения
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RoleModerator = "moderator"
)

const (
	PermNotificationsRead  = "notifications:read:self"
	PermNotificationsWrite = "notifications:write:self"
	PermNotificationsSend  = "notifications:send"
	PermQueuesManage       = "queues:manage"
	PermSystemAdmin        = "system:admin"
)

// Permissions список разрешений
var Permissions = map[string][]string{
	RoleAdmin: {
		PermNotificationsRead,
		PermNotificationsWrite,
		PermNotificationsSend,
		PermQueuesManage,
		PermSystemAdmin,
	},
	RoleModerator: {
		PermNotificationsRead,
		PermNotificationsWrite,
		PermNotificationsSend,
	},
	RoleUser: {
		PermNotificationsRead,
		PermNotificationsWrite,
	},
}

// HasPermission проверяет есть ли у роли указанное разрешение
func HasPermission(role, permission string) bool {
	permissions, exists := Permissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CanPerformAction проверяет может ли пользователь выполнить действие
func CanPerformAction(claims *Claims, permission string) bool {
	return HasPermission(claims.Role, permission)
}

// IsAdmin проверяет является ли пользователь администратором
func IsAdmin(claims *Claims) bool {
	return claims.Role == RoleAdmin
}

// ValidateRole проверяет валидность роли
func ValidateRole(role string) error {
	switch role {
	case RoleAdmin, RoleUser, RoleModerator:
		return nil
	default:
		return errors.New("invalid role")
	}
}
