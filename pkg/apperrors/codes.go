package apperrors

// ErrorCode - тип для кодов ошибок
type ErrorCode string

// Общие, не-доменные коды ошибок
const (
	// Системные и неизвестные ошибки
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Общие ошибки бизнес-логики
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// Аутентификация и авторизация
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Доставка уведомлений
	CodeRateLimited             ErrorCode = "RATE_LIMITED"
	CodeChannelDeliveryFailed   ErrorCode = "CHANNEL_DELIVERY_FAILED"
	CodeChannelDeliveryRejected ErrorCode = "CHANNEL_DELIVERY_REJECTED"
	CodeCacheUnavailable        ErrorCode = "CACHE_UNAVAILABLE"
	CodeQueueUnavailable        ErrorCode = "QUEUE_UNAVAILABLE"
)
