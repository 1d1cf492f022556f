// Package auth 提供管理接口的口令校验与 JWT 签发。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDisabled           = errors.New("admin access disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Manager 管理员认证管理器。PasswordHash 为空时管理接口关闭，
// 所有操作返回 ErrDisabled。
type Manager struct {
	passwordHash []byte
	secret       []byte
	tokenExpiry  time.Duration
}

// NewManager 创建认证管理器。
func NewManager(passwordHash, jwtSecret string, tokenExpiry time.Duration) *Manager {
	return &Manager{
		passwordHash: []byte(passwordHash),
		secret:       []byte(jwtSecret),
		tokenExpiry:  tokenExpiry,
	}
}

// Enabled 管理接口是否开启。
func (m *Manager) Enabled() bool {
	return len(m.passwordHash) > 0
}

// Login 校验管理口令并签发访问令牌。
func (m *Manager) Login(password string) (string, error) {
	if !m.Enabled() {
		return "", ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenExpiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify 校验访问令牌。
func (m *Manager) Verify(tokenString string) error {
	if !m.Enabled() {
		return ErrDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
