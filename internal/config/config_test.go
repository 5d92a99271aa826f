package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  env: production
database:
  url: postgres://file
jwt:
  secret: file-secret-0123456789
queue:
  max_attempts: 5
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.Backoff())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file
jwt:
  secret: short
`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadInvalidPort(t *testing.T) {
	path := writeConfig(t, "database:\n  url: x\njwt:\n  secret: 0123456789abcdef\n")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "eighty")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadSendTimeoutBelowHandlerTimeout(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file
jwt:
  secret: 0123456789abcdef
queue:
  handler_timeout_ms: 15000
email:
  send_timeout_ms: 15000
`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email.send_timeout_ms")

	cfg := Default()
	assert.Less(t, cfg.Email.SendTimeout(), cfg.Queue.HandlerTimeout())
}
