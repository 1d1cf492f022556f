// Package sql 提供基于 GORM 的数据库存储实现（支持 MySQL 和 PostgreSQL）。
package sql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempbox/backend/internal/domain"
)

var (
	ErrMailboxNotFound = domain.ErrMailboxNotFound
	ErrMessageNotFound = domain.ErrMessageNotFound
)

// Store SQL 数据库存储实现。
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储并执行自动迁移。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driverName {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driverName: driverName}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 执行数据库迁移。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Mailbox{},
		&domain.Message{},
	)
}

// SaveMailbox 保存邮箱信息。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	return s.db.Save(mailbox).Error
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.db.First(&mailbox, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	address = strings.ToLower(strings.TrimSpace(address))
	if err := s.db.First(&mailbox, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// ListMailboxes 返回全部邮箱。
func (s *Store) ListMailboxes() []domain.Mailbox {
	var mailboxes []domain.Mailbox
	s.db.Order("created_at DESC").Find(&mailboxes)
	return mailboxes
}

// DeleteMailbox 删除邮箱及其全部邮件。
func (s *Store) DeleteMailbox(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&domain.Mailbox{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMailboxNotFound
		}
		return tx.Delete(&domain.Message{}, "mailbox_id = ?", id).Error
	})
}

// SetMailboxActive 设置邮箱激活状态。
func (s *Store) SetMailboxActive(id string, active bool) error {
	result := s.db.Model(&domain.Mailbox{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMailboxNotFound
	}
	return nil
}

// DeleteExpiredMailboxes 删除全部已过期邮箱，返回删除数量。
func (s *Store) DeleteExpiredMailboxes() (int, error) {
	now := time.Now().UTC()
	var expired []domain.Mailbox
	if err := s.db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Find(&expired).Error; err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, mb := range expired {
		ids = append(ids, mb.ID)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Message{}, "mailbox_id IN ?", ids).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Mailbox{}, "id IN ?", ids).Error
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountMailboxesByIP 统计同一来源 IP 创建的邮箱数量。
func (s *Store) CountMailboxesByIP(ip string) (int, error) {
	var count int64
	if err := s.db.Model(&domain.Mailbox{}).Where("ip_source = ?", ip).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveMessage 保存一封邮件。
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Create(message).Error
}

// ListMessages 列出指定邮箱的全部邮件，按接收时间倒序。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	if _, err := s.GetMailbox(mailboxID); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := s.db.Where("mailbox_id = ?", mailboxID).Order("received_at DESC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.First(&message, "mailbox_id = ? AND id = ?", mailboxID, messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// MarkMessageRead 将邮件标记为已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	result := s.db.Model(&domain.Message{}).
		Where("mailbox_id = ? AND id = ?", mailboxID, messageID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage 删除单封邮件。
func (s *Store) DeleteMessage(mailboxID, messageID string) error {
	result := s.db.Delete(&domain.Message{}, "mailbox_id = ? AND id = ?", mailboxID, messageID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteAllMessages 清空邮箱内全部邮件，返回删除数量。
func (s *Store) DeleteAllMessages(mailboxID string) (int, error) {
	result := s.db.Delete(&domain.Message{}, "mailbox_id = ?", mailboxID)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// SearchMessages 按条件搜索邮件。
func (s *Store) SearchMessages(criteria domain.MessageSearchCriteria) (*domain.MessageSearchResult, error) {
	query := s.db.Model(&domain.Message{}).Where("mailbox_id = ?", criteria.MailboxID)
	if criteria.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if q := strings.TrimSpace(criteria.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(subject) LIKE ? OR LOWER(sender) LIKE ? OR LOWER(text) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	if criteria.Limit > 0 {
		query = query.Limit(criteria.Limit)
	}
	if criteria.Offset > 0 {
		query = query.Offset(criteria.Offset)
	}

	var messages []domain.Message
	if err := query.Order("received_at DESC").Find(&messages).Error; err != nil {
		return nil, err
	}

	return &domain.MessageSearchResult{
		Messages: messages,
		Total:    int(total),
	}, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
