package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attachment 表示邮件附件的元数据。
// 系统不落库附件内容本身，只保留描述信息与是否携带内容的标记。
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	HasContent  bool   `json:"hasContent"`
}

// AttachmentList 附件元数据列表，在 SQL 存储中以 JSON 文本落库。
type AttachmentList []Attachment

// Value 实现 driver.Valuer。
func (l AttachmentList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner。
func (l *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*l = AttachmentList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported attachment list type %T", value)
	}
}
