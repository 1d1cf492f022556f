package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/domain"
)

func newMailbox(id, address string) *domain.Mailbox {
	expires := time.Now().UTC().Add(time.Hour)
	return &domain.Mailbox{
		ID:        id,
		Address:   address,
		LocalPart: "test",
		Domain:    "tempbox.dev",
		Token:     "token-" + id,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: &expires,
		IsActive:  true,
	}
}

func newMessage(id, mailboxID, subject string) *domain.Message {
	now := time.Now().UTC()
	return &domain.Message{
		ID:         id,
		MailboxID:  mailboxID,
		From:       "sender@example.com",
		To:         "test@tempbox.dev",
		Subject:    subject,
		Text:       "body of " + subject,
		CreatedAt:  now,
		ReceivedAt: now,
	}
}

func TestMailboxCRUD(t *testing.T) {
	store := NewStore()

	t.Run("保存并读取邮箱", func(t *testing.T) {
		mb := newMailbox("mb-1", "alice@tempbox.dev")
		require.NoError(t, store.SaveMailbox(mb))

		got, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.Equal(t, "alice@tempbox.dev", got.Address)
	})

	t.Run("按地址查询不区分大小写", func(t *testing.T) {
		got, err := store.GetMailboxByAddress("ALICE@TempBox.DEV")
		require.NoError(t, err)
		assert.Equal(t, "mb-1", got.ID)
	})

	t.Run("读取不存在的邮箱", func(t *testing.T) {
		_, err := store.GetMailbox("missing")
		assert.ErrorIs(t, err, ErrMailboxNotFound)

		_, err = store.GetMailboxByAddress("nobody@tempbox.dev")
		assert.ErrorIs(t, err, ErrMailboxNotFound)
	})

	t.Run("返回的是快照副本", func(t *testing.T) {
		got, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		got.Address = "mutated@tempbox.dev"

		again, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.Equal(t, "alice@tempbox.dev", again.Address)
	})

	t.Run("停用邮箱", func(t *testing.T) {
		require.NoError(t, store.SetMailboxActive("mb-1", false))
		got, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		require.NoError(t, store.SetMailboxActive("mb-1", true))
	})

	t.Run("删除邮箱后地址索引同步清除", func(t *testing.T) {
		require.NoError(t, store.DeleteMailbox("mb-1"))
		_, err := store.GetMailboxByAddress("alice@tempbox.dev")
		assert.ErrorIs(t, err, ErrMailboxNotFound)
	})
}

func TestDeleteExpiredMailboxes(t *testing.T) {
	store := NewStore()

	expired := newMailbox("old", "old@tempbox.dev")
	past := time.Now().UTC().Add(-time.Minute)
	expired.ExpiresAt = &past
	require.NoError(t, store.SaveMailbox(expired))
	require.NoError(t, store.SaveMessage(newMessage("m1", "old", "stale")))

	fresh := newMailbox("new", "new@tempbox.dev")
	require.NoError(t, store.SaveMailbox(fresh))

	count, err := store.DeleteExpiredMailboxes()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.GetMailbox("old")
	assert.ErrorIs(t, err, ErrMailboxNotFound)
	_, err = store.GetMailboxByAddress("old@tempbox.dev")
	assert.ErrorIs(t, err, ErrMailboxNotFound)

	_, err = store.GetMailbox("new")
	assert.NoError(t, err)
}

func TestCountMailboxesByIP(t *testing.T) {
	store := NewStore()

	for i := 0; i < 3; i++ {
		mb := newMailbox(fmt.Sprintf("mb-%d", i), fmt.Sprintf("u%d@tempbox.dev", i))
		mb.IPSource = "10.0.0.1"
		require.NoError(t, store.SaveMailbox(mb))
	}
	other := newMailbox("mb-x", "x@tempbox.dev")
	other.IPSource = "10.0.0.2"
	require.NoError(t, store.SaveMailbox(other))

	count, err := store.CountMailboxesByIP("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMessageOperations(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newMailbox("mb-1", "alice@tempbox.dev")))

	t.Run("投递到不存在的邮箱被拒绝", func(t *testing.T) {
		err := store.SaveMessage(newMessage("m0", "ghost", "x"))
		assert.ErrorIs(t, err, ErrMailboxNotFound)
	})

	t.Run("保存并列出邮件", func(t *testing.T) {
		first := newMessage("m1", "mb-1", "first")
		first.ReceivedAt = time.Now().UTC().Add(-time.Minute)
		require.NoError(t, store.SaveMessage(first))
		require.NoError(t, store.SaveMessage(newMessage("m2", "mb-1", "second")))

		messages, err := store.ListMessages("mb-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		// 按接收时间倒序
		assert.Equal(t, "second", messages[0].Subject)
		assert.Equal(t, "first", messages[1].Subject)
	})

	t.Run("标记已读", func(t *testing.T) {
		require.NoError(t, store.MarkMessageRead("mb-1", "m1"))
		msg, err := store.GetMessage("mb-1", "m1")
		require.NoError(t, err)
		assert.True(t, msg.IsRead)
	})

	t.Run("删除单封邮件", func(t *testing.T) {
		require.NoError(t, store.DeleteMessage("mb-1", "m1"))
		_, err := store.GetMessage("mb-1", "m1")
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("清空邮箱", func(t *testing.T) {
		count, err := store.DeleteAllMessages("mb-1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		messages, err := store.ListMessages("mb-1")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}

func TestSearchMessages(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newMailbox("mb-1", "alice@tempbox.dev")))

	invoice := newMessage("m1", "mb-1", "Your Invoice")
	invoice.IsRead = true
	require.NoError(t, store.SaveMessage(invoice))
	require.NoError(t, store.SaveMessage(newMessage("m2", "mb-1", "Welcome")))
	require.NoError(t, store.SaveMessage(newMessage("m3", "mb-1", "Invoice reminder")))

	t.Run("按关键词搜索主题", func(t *testing.T) {
		result, err := store.SearchMessages(domain.MessageSearchCriteria{
			MailboxID: "mb-1",
			Query:     "invoice",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("只看未读", func(t *testing.T) {
		result, err := store.SearchMessages(domain.MessageSearchCriteria{
			MailboxID:  "mb-1",
			Query:      "invoice",
			UnreadOnly: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, "Invoice reminder", result.Messages[0].Subject)
	})

	t.Run("分页", func(t *testing.T) {
		result, err := store.SearchMessages(domain.MessageSearchCriteria{
			MailboxID: "mb-1",
			Limit:     2,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Len(t, result.Messages, 2)

		rest, err := store.SearchMessages(domain.MessageSearchCriteria{
			MailboxID: "mb-1",
			Limit:     2,
			Offset:    2,
		})
		require.NoError(t, err)
		assert.Len(t, rest.Messages, 1)
	})
}
