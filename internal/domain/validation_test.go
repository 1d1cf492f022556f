package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLocalPart(t *testing.T) {
	v := NewEmailValidator()

	valid := []string{"abc", "user123", "a.b.c", "first-last", "a_b_c"}
	for _, localPart := range valid {
		assert.NoError(t, v.ValidateLocalPart(localPart), localPart)
	}

	invalid := []string{
		"",
		"ab",              // 过短
		".abc",            // 以点开头
		"abc.",            // 以点结尾
		"a..b",            // 连续点
		"a--b",            // 连续连字符
		"a b",             // 含空格
		"user@host",       // 含 @
		strings.Repeat("a", 65), // 过长
	}
	for _, localPart := range invalid {
		assert.Error(t, v.ValidateLocalPart(localPart), localPart)
	}
}

func TestValidateDomain(t *testing.T) {
	v := NewEmailValidator()

	assert.NoError(t, v.ValidateDomain("tempbox.dev"))
	assert.NoError(t, v.ValidateDomain("mail.example.co.uk"))

	assert.Error(t, v.ValidateDomain(""))
	assert.Error(t, v.ValidateDomain("no spaces.dev"))
	assert.Error(t, v.ValidateDomain(strings.Repeat("a", 64)+".dev"))
}

func TestValidateEmail(t *testing.T) {
	v := NewEmailValidator()

	assert.NoError(t, v.ValidateEmail("alice@tempbox.dev"))
	assert.Error(t, v.ValidateEmail("not-an-email"))
	assert.Error(t, v.ValidateEmail("a@"+strings.Repeat("x", 260)+".dev"))
}
