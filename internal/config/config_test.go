package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TEMPBOX_SERVER_HOST",
	"TEMPBOX_SERVER_PORT",
	"TEMPBOX_MAILBOX_ALLOWED_DOMAINS",
	"TEMPBOX_MAILBOX_DEFAULT_TTL",
	"TEMPBOX_MAILBOX_MAX_PER_IP",
	"TEMPBOX_SMTP_BIND_ADDR",
	"TEMPBOX_SMTP_HOSTNAME",
	"TEMPBOX_SMTP_MAX_MESSAGE_BYTES",
	"TEMPBOX_LOG_LEVEL",
	"TEMPBOX_ADMIN_PASSWORD_HASH",
	"TEMPBOX_ADMIN_JWT_SECRET",
}

func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envKeys {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		withCleanEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"tempbox.dev"}, cfg.Mailbox.AllowedDomains)
		assert.Equal(t, time.Hour, cfg.Mailbox.DefaultTTL)
		assert.Equal(t, 5, cfg.Mailbox.MaxPerIP)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "tempbox.dev", cfg.SMTP.Hostname)
		assert.Equal(t, int64(10*1024*1024), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, 8192, cfg.SMTP.MaxLineBytes)
		assert.Equal(t, 2*time.Minute, cfg.SMTP.IdleTimeout)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Empty(t, cfg.Database.Type)
		assert.False(t, cfg.Redis.Enabled)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("TEMPBOX_SERVER_PORT", "9090")
		os.Setenv("TEMPBOX_MAILBOX_ALLOWED_DOMAINS", "Mail.Example.com, other.example.org")
		os.Setenv("TEMPBOX_SMTP_BIND_ADDR", ":25")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"mail.example.com", "other.example.org"}, cfg.Mailbox.AllowedDomains)
		assert.Equal(t, ":25", cfg.SMTP.BindAddr)
	})

	t.Run("非法TTL返回错误", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("TEMPBOX_MAILBOX_DEFAULT_TTL", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("启用管理接口时校验JWT密钥长度", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("TEMPBOX_ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
		os.Setenv("TEMPBOX_ADMIN_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"a"}, parseList("a,,  ,"))
	assert.Empty(t, parseList(""))
}
