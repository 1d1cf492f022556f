package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, password string) *Manager {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return NewManager(string(hash), testSecret, time.Minute)
}

func TestLogin(t *testing.T) {
	t.Run("正确口令签发令牌", func(t *testing.T) {
		m := newTestManager(t, "secret-password")
		token, err := m.Login("secret-password")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.NoError(t, m.Verify(token))
	})

	t.Run("错误口令被拒绝", func(t *testing.T) {
		m := newTestManager(t, "secret-password")
		_, err := m.Login("wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("未配置口令时管理接口关闭", func(t *testing.T) {
		m := NewManager("", testSecret, time.Minute)
		assert.False(t, m.Enabled())
		_, err := m.Login("anything")
		assert.ErrorIs(t, err, ErrDisabled)
	})
}

func TestVerify(t *testing.T) {
	t.Run("伪造令牌被拒绝", func(t *testing.T) {
		m := newTestManager(t, "secret-password")
		assert.ErrorIs(t, m.Verify("not-a-jwt"), ErrInvalidToken)
	})

	t.Run("其他密钥签发的令牌被拒绝", func(t *testing.T) {
		m := newTestManager(t, "secret-password")

		hash, err := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.MinCost)
		require.NoError(t, err)
		other := NewManager(string(hash), "ffffffffffffffffffffffffffffffff", time.Minute)

		token, err := other.Login("secret-password")
		require.NoError(t, err)
		assert.ErrorIs(t, m.Verify(token), ErrInvalidToken)
	})

	t.Run("过期令牌被拒绝", func(t *testing.T) {
		hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
		require.NoError(t, err)
		m := NewManager(string(hash), testSecret, -time.Minute)

		token, err := m.Login("pw")
		require.NoError(t, err)
		assert.ErrorIs(t, m.Verify(token), ErrInvalidToken)
	})
}
