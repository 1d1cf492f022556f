package service

import (
	"time"

	"github.com/google/uuid"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/mailparse"
)

// MessageService 封装邮件的持久化与查询逻辑，Deliver 即入站管道的持久化落点。
type MessageService struct {
	store domain.Store
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(store domain.Store) *MessageService {
	return &MessageService{store: store}
}

// Deliver 将解析后的候选记录落库并返回完整的邮件记录。
// 存储分配的 ID 即对外可见的邮件标识。
func (s *MessageService) Deliver(mailboxID string, email *mailparse.Email) (*domain.Message, error) {
	now := time.Now().UTC()

	message := &domain.Message{
		ID:          uuid.NewString(),
		MailboxID:   mailboxID,
		MessageID:   email.MessageID,
		From:        email.From,
		FromName:    email.FromName,
		To:          email.To,
		Subject:     email.Subject,
		Text:        email.Text,
		HTML:        email.HTML,
		Headers:     email.Headers,
		Attachments: email.Attachments,
		Size:        email.Size,
		IsRead:      false,
		CreatedAt:   now,
		ReceivedAt:  now,
	}

	if err := s.store.SaveMessage(message); err != nil {
		return nil, err
	}
	return message, nil
}

// List 列出指定邮箱下的邮件。
func (s *MessageService) List(mailboxID string) ([]domain.Message, error) {
	return s.store.ListMessages(mailboxID)
}

// Get 获取单封邮件详情。
func (s *MessageService) Get(mailboxID, messageID string) (*domain.Message, error) {
	return s.store.GetMessage(mailboxID, messageID)
}

// MarkRead 将邮件标记为已读。
func (s *MessageService) MarkRead(mailboxID, messageID string) error {
	return s.store.MarkMessageRead(mailboxID, messageID)
}

// Delete 删除指定邮件。
func (s *MessageService) Delete(mailboxID, messageID string) error {
	return s.store.DeleteMessage(mailboxID, messageID)
}

// ClearAll 清空邮箱中的所有邮件，返回删除数量。
func (s *MessageService) ClearAll(mailboxID string) (int, error) {
	return s.store.DeleteAllMessages(mailboxID)
}

// Search 按条件搜索邮件。
func (s *MessageService) Search(criteria domain.MessageSearchCriteria) (*domain.MessageSearchResult, error) {
	if criteria.Limit <= 0 {
		criteria.Limit = 50
	}
	return s.store.SearchMessages(criteria)
}
