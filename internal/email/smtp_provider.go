package email

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"daohub_backend/internal/validator"

	"gopkg.in/gomail.v2"
)

// SMTPProvider отправляет письма через gomail.
type SMTPProvider struct {
	config    *SMTPConfig
	validator *validator.Validator
	send      func(m *gomail.Message) error
}

func NewSMTPProvider(config *SMTPConfig, v *validator.Validator) *SMTPProvider {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	return &SMTPProvider{
		config:    config,
		validator: v,
		send:      func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

// Send отправляет письмо. gomail не принимает context, поэтому отправка идет
// в отдельной горутине, а ожидание ограничено ctx и config.Timeout.
func (p *SMTPProvider) Send(ctx context.Context, email *Email) error {
	if err := p.validator.Var("to", email.To, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, email.To)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.config.FromEmail, p.config.FromName)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	if email.Body != "" {
		m.SetBody("text/plain", email.Body)
		if email.HTMLBody != "" {
			m.AddAlternative("text/html", email.HTMLBody)
		}
	} else {
		m.SetBody("text/html", email.HTMLBody)
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- p.send(m)
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return fmt.Errorf("email: send to %s: %w", email.To, ctx.Err())
	}
}

// classify wraps permanent 5xx SMTP replies into ErrRejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600 {
		return fmt.Errorf("%w: %d %s", ErrRejected, tpErr.Code, tpErr.Msg)
	}
	return err
}

// Validate проверяет конфигурацию SMTP
func (p *SMTPProvider) Validate() error {
	if p.config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if p.config.Port <= 0 || p.config.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", p.config.Port)
	}
	if err := p.validator.Var("from_email", p.config.FromEmail, "required,email"); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	return nil
}

func (p *SMTPProvider) Close() error {
	return nil
}
