package email

import (
	"context"
	"errors"
)

var (
	// ErrInvalidAddress: адрес получателя пустой или некорректный. Повтор не поможет.
	ErrInvalidAddress = errors.New("email: invalid recipient address")
	// ErrRejected: SMTP сервер окончательно отклонил письмо (5xx).
	ErrRejected = errors.New("email: rejected by server")
)

// Provider отправляет письма. Ошибки, обернутые в ErrInvalidAddress или
// ErrRejected, постоянные; остальные считаются временными.
type Provider interface {
	Send(ctx context.Context, email *Email) error
	Validate() error
	Close() error
}

// TemplateRenderer определяет интерфейс для рендеринга шаблонов
type TemplateRenderer interface {
	Render(templateName string, data TemplateData) (string, error)
	AddTemplate(name string, template string) error
	LoadTemplates(dirPath string) error
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrRejected)
}
