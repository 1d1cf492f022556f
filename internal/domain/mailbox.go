package domain

import (
	"time"
)

// Mailbox 表示一个短期有效的临时邮箱地址。
type Mailbox struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address   string     `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	LocalPart string     `json:"localPart" gorm:"type:varchar(255)"`
	Domain    string     `json:"domain" gorm:"type:varchar(100);index"`
	Token     string     `json:"token" gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" gorm:"index"`
	IsActive  bool       `json:"isActive" gorm:"default:true;index"`
	IPSource  string     `json:"-"`
}

// Live 判断邮箱当前是否可收信：必须处于激活状态且未过期。
// 过期与停用在下游的表现完全一致，均视为不存在。
func (m *Mailbox) Live(now time.Time) bool {
	if m == nil || !m.IsActive {
		return false
	}
	if m.ExpiresAt == nil {
		return true
	}
	return now.Before(*m.ExpiresAt)
}
