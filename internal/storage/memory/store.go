// Package memory 使用内存保存邮箱与邮件数据，主要用于开发验证与测试。
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"tempbox/backend/internal/domain"
)

var (
	ErrMailboxNotFound = domain.ErrMailboxNotFound
	ErrMessageNotFound = domain.ErrMessageNotFound
)

// Store 内存存储实现。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox
	byAddress map[string]string
	messages  map[string]map[string]*domain.Message // mailboxID -> messageID -> message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		byAddress: make(map[string]string),
		messages:  make(map[string]map[string]*domain.Message),
	}
}

// SaveMailbox 保存邮箱信息。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mailboxes[mailbox.ID] = mailbox
	s.byAddress[strings.ToLower(mailbox.Address)] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, ErrMailboxNotFound
	}
	copied := *mailbox
	return &copied, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱，地址比较不区分大小写。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	id, ok := s.byAddress[strings.ToLower(strings.TrimSpace(address))]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMailboxNotFound
	}
	return s.GetMailbox(id)
}

// ListMailboxes 返回全部邮箱的快照。
func (s *Store) ListMailboxes() []domain.Mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		result = append(result, *mb)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// DeleteMailbox 删除邮箱及其全部邮件。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return ErrMailboxNotFound
	}
	delete(s.byAddress, strings.ToLower(mailbox.Address))
	delete(s.mailboxes, id)
	delete(s.messages, id)
	return nil
}

// SetMailboxActive 设置邮箱激活状态。
func (s *Store) SetMailboxActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return ErrMailboxNotFound
	}
	mailbox.IsActive = active
	return nil
}

// DeleteExpiredMailboxes 删除全部已过期邮箱，返回删除数量。
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for id, mb := range s.mailboxes {
		if mb.ExpiresAt != nil && !now.Before(*mb.ExpiresAt) {
			delete(s.byAddress, strings.ToLower(mb.Address))
			delete(s.mailboxes, id)
			delete(s.messages, id)
			count++
		}
	}
	return count, nil
}

// CountMailboxesByIP 统计同一来源 IP 创建的邮箱数量。
func (s *Store) CountMailboxesByIP(ip string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, mb := range s.mailboxes {
		if mb.IPSource == ip {
			count++
		}
	}
	return count, nil
}

// SaveMessage 保存一封邮件。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[message.MailboxID]; !ok {
		return ErrMailboxNotFound
	}
	box, ok := s.messages[message.MailboxID]
	if !ok {
		box = make(map[string]*domain.Message)
		s.messages[message.MailboxID] = box
	}
	box[message.ID] = message
	return nil
}

// ListMessages 列出指定邮箱的全部邮件，按接收时间倒序。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.mailboxes[mailboxID]; !ok {
		return nil, ErrMailboxNotFound
	}

	box := s.messages[mailboxID]
	result := make([]domain.Message, 0, len(box))
	for _, msg := range box {
		result = append(result, *msg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[mailboxID][messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// MarkMessageRead 将邮件标记为已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[mailboxID][messageID]
	if !ok {
		return ErrMessageNotFound
	}
	msg.IsRead = true
	return nil
}

// DeleteMessage 删除单封邮件。
func (s *Store) DeleteMessage(mailboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[mailboxID][messageID]; !ok {
		return ErrMessageNotFound
	}
	delete(s.messages[mailboxID], messageID)
	return nil
}

// DeleteAllMessages 清空邮箱内全部邮件，返回删除数量。
func (s *Store) DeleteAllMessages(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[mailboxID]; !ok {
		return 0, ErrMailboxNotFound
	}
	count := len(s.messages[mailboxID])
	delete(s.messages, mailboxID)
	return count, nil
}

// SearchMessages 按条件搜索邮件。
func (s *Store) SearchMessages(criteria domain.MessageSearchCriteria) (*domain.MessageSearchResult, error) {
	messages, err := s.ListMessages(criteria.MailboxID)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(criteria.Query))
	matched := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if criteria.UnreadOnly && msg.IsRead {
			continue
		}
		if query != "" && !matchesQuery(&msg, query) {
			continue
		}
		matched = append(matched, msg)
	}

	total := len(matched)
	offset := criteria.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if criteria.Limit > 0 && offset+criteria.Limit < end {
		end = offset + criteria.Limit
	}

	return &domain.MessageSearchResult{
		Messages: matched[offset:end],
		Total:    total,
	}, nil
}

// matchesQuery 检查邮件主题、发件人或正文是否包含查询串。
func matchesQuery(msg *domain.Message, query string) bool {
	return strings.Contains(strings.ToLower(msg.Subject), query) ||
		strings.Contains(strings.ToLower(msg.From), query) ||
		strings.Contains(strings.ToLower(msg.Text), query)
}

// Close 实现 domain.Store。内存存储无需释放资源。
func (s *Store) Close() error { return nil }

// Health 实现 domain.Store。
func (s *Store) Health() error { return nil }
