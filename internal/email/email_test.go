package email

import (
	"context"
	"errors"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"daohub_backend/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func newTestProvider(send func(m *gomail.Message) error) *SMTPProvider {
	p := NewSMTPProvider(&SMTPConfig{
		Host:      "smtp.test",
		Port:      587,
		FromEmail: "noreply@daohub.test",
		Timeout:   time.Second,
	}, validator.New())
	p.send = send
	return p
}

func TestSendSuccess(t *testing.T) {
	var sent *gomail.Message
	p := newTestProvider(func(m *gomail.Message) error {
		sent = m
		return nil
	})

	err := p.Send(context.Background(), &Email{To: "alice@daohub.test", Subject: "Hi", HTMLBody: "<p>x</p>"})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"alice@daohub.test"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"Hi"}, sent.GetHeader("Subject"))
}

func TestInvalidAddressIsPermanent(t *testing.T) {
	called := false
	p := newTestProvider(func(m *gomail.Message) error {
		called = true
		return nil
	})

	err := p.Send(context.Background(), &Email{To: "not-an-address"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.True(t, IsPermanent(err))
	assert.False(t, called)
}

func TestServerRejectionIsPermanent(t *testing.T) {
	p := newTestProvider(func(m *gomail.Message) error {
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	})

	err := p.Send(context.Background(), &Email{To: "bob@daohub.test"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, IsPermanent(err))
}

func TestTransientErrorIsRetryable(t *testing.T) {
	p := newTestProvider(func(m *gomail.Message) error {
		return &textproto.Error{Code: 421, Msg: "try again later"}
	})

	err := p.Send(context.Background(), &Email{To: "bob@daohub.test"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestSendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := newTestProvider(func(m *gomail.Message) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Send(ctx, &Email{To: "bob@daohub.test"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, IsPermanent(err))
}

func TestTemplates(t *testing.T) {
	tm := NewTemplateManager()

	html, err := tm.Render(NotificationTemplate, TemplateData{
		"Title":     "Proposal created",
		"Message":   "<b>vote now</b>",
		"Recipient": "alice@daohub.test",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Proposal created")
	assert.Contains(t, html, "&lt;b&gt;vote now&lt;/b&gt;")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notification.html"), []byte("custom {{.Title}}"), 0o600))
	require.NoError(t, tm.LoadTemplates(dir))

	html, err = tm.Render(NotificationTemplate, TemplateData{"Title": "T"})
	require.NoError(t, err)
	assert.Equal(t, "custom T", html)
	assert.Equal(t, []string{"notification"}, tm.TemplateNames())

	_, err = tm.Render("missing", nil)
	assert.Error(t, err)
}
