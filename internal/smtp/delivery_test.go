package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/mailparse"
)

func TestDeliverer(t *testing.T) {
	t.Run("存活邮箱收到投递", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox := createMailbox(t, env, "alice")

		raw := []byte("From: bob@example.com\r\n" +
			"To: alice@tempbox.dev\r\n" +
			"Subject: direct\r\n" +
			"\r\n" +
			"hello\r\n")
		env.server.deliverer.Deliver(raw, mailparse.Envelope{Sender: "bob@example.com"})

		messages, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "direct", messages[0].Subject)
	})

	t.Run("解析失败静默丢弃", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox := createMailbox(t, env, "alice")

		env.server.deliverer.Deliver([]byte("garbage without headers"), mailparse.Envelope{})

		messages, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("无收件人静默丢弃", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox := createMailbox(t, env, "alice")

		raw := []byte("From: bob@example.com\r\n" +
			"Subject: lost\r\n" +
			"\r\n" +
			"hello\r\n")
		env.server.deliverer.Deliver(raw, mailparse.Envelope{})

		messages, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("未知收件人静默丢弃", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox := createMailbox(t, env, "alice")

		raw := []byte("From: bob@example.com\r\n" +
			"To: ghost@tempbox.dev\r\n" +
			"\r\n" +
			"hello\r\n")
		env.server.deliverer.Deliver(raw, mailparse.Envelope{})

		messages, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}
