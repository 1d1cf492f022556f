package domain

import "errors"

// 存储层统一的未找到错误，各实现共用同一哨兵。
var (
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMessageNotFound = errors.New("message not found")
)

// Store 聚合所有存储接口。
type Store interface {
	// ========== Mailbox Repository ==========
	SaveMailbox(mailbox *Mailbox) error
	GetMailbox(id string) (*Mailbox, error)
	GetMailboxByAddress(address string) (*Mailbox, error)
	ListMailboxes() []Mailbox
	DeleteMailbox(id string) error
	SetMailboxActive(id string, active bool) error
	DeleteExpiredMailboxes() (int, error)
	CountMailboxesByIP(ip string) (int, error)

	// ========== Message Repository ==========
	SaveMessage(message *Message) error
	ListMessages(mailboxID string) ([]Message, error)
	GetMessage(mailboxID, messageID string) (*Message, error)
	MarkMessageRead(mailboxID, messageID string) error
	DeleteMessage(mailboxID, messageID string) error
	DeleteAllMessages(mailboxID string) (int, error)
	SearchMessages(criteria MessageSearchCriteria) (*MessageSearchResult, error)

	Close() error
	Health() error
}
