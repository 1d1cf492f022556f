package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HeaderMap 保存解析后的邮件头，键统一为小写。
// 在 SQL 存储中以 JSON 文本落库。
type HeaderMap map[string]string

// Value 实现 driver.Valuer。
func (h HeaderMap) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner。
func (h *HeaderMap) Scan(value interface{}) error {
	if value == nil {
		*h = HeaderMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("unsupported header map type %T", value)
	}
}

// Message 表示投递到临时邮箱的一封入站邮件。
// 记录由摄取管道与过期网关一次性生成，核心路径此后不再修改，
// 已读标记等状态变更只发生在 API 层。
type Message struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID   string         `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	MessageID   string         `json:"messageId" gorm:"type:varchar(255)"`
	From        string         `json:"from" gorm:"column:sender;type:varchar(255)"`
	FromName    string         `json:"fromName,omitempty" gorm:"column:sender_name;type:varchar(255)"`
	To          string         `json:"to" gorm:"column:recipient;type:varchar(255)"`
	Subject     string         `json:"subject" gorm:"type:varchar(500)"`
	Text        string         `json:"text,omitempty" gorm:"type:text"`
	HTML        string         `json:"html,omitempty" gorm:"type:text"`
	Headers     HeaderMap      `json:"headers,omitempty" gorm:"type:text"`
	Attachments AttachmentList `json:"attachments,omitempty" gorm:"type:text"`
	Size        int64          `json:"size"`
	IsRead      bool           `json:"isRead" gorm:"default:false;index"`
	CreatedAt   time.Time      `json:"createdAt"`
	ReceivedAt  time.Time      `json:"receivedAt"`
}

// MessageSearchCriteria 定义邮件搜索条件。
type MessageSearchCriteria struct {
	MailboxID  string
	Query      string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// MessageSearchResult 邮件搜索结果。
type MessageSearchResult struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
