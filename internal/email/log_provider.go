package email

import (
	"context"

	"daohub_backend/internal/logger"
)

// LogProvider пишет письма в лог. Используется, когда SMTP не настроен.
type LogProvider struct{}

func (LogProvider) Send(ctx context.Context, email *Email) error {
	if email.To == "" {
		return ErrInvalidAddress
	}
	logger.CtxInfo(ctx, "email (smtp disabled)", "to", email.To, "subject", email.Subject)
	return nil
}

func (LogProvider) Validate() error { return nil }
func (LogProvider) Close() error    { return nil }
