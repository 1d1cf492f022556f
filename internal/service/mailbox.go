package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	redicache "tempbox/backend/internal/storage/redis"
)

var (
	ErrDomainNotAllowed = errors.New("domain not allowed")
	ErrPrefixInvalid    = errors.New("prefix invalid")
	ErrTooManyMailboxes = errors.New("too many mailboxes for this ip")
)

// MailboxService 封装临时邮箱的业务操作，同时充当入站投递的地址解析器。
type MailboxService struct {
	store          domain.Store
	cfg            *config.Config
	cache          *redicache.Cache // 可选的地址解析缓存
	log            *zap.Logger
	domainSet      map[string]struct{}
	tokenAlphabet  []rune
	emailValidator *domain.EmailValidator
}

// NewMailboxService 创建邮箱业务服务。
func NewMailboxService(store domain.Store, cfg *config.Config, log *zap.Logger) *MailboxService {
	domainSet := make(map[string]struct{}, len(cfg.Mailbox.AllowedDomains))
	for _, d := range cfg.Mailbox.AllowedDomains {
		domainSet[d] = struct{}{}
	}

	return &MailboxService{
		store:     store,
		cfg:       cfg,
		log:       log,
		domainSet: domainSet,
		tokenAlphabet: []rune("abcdefghijklmnopqrstuvwxyz" +
			"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
		emailValidator: domain.NewEmailValidator(),
	}
}

// SetCache 设置地址解析缓存（可选）。
func (s *MailboxService) SetCache(cache *redicache.Cache) {
	s.cache = cache
}

// CreateMailboxInput 定义创建邮箱所需的输入。
type CreateMailboxInput struct {
	Prefix   string
	Domain   string
	IPSource string
	TTL      time.Duration // 为零时使用配置的默认 TTL
}

// Create 创建新的临时邮箱。
func (s *MailboxService) Create(input CreateMailboxInput) (*domain.Mailbox, error) {
	selectedDomain := s.pickDomain(input.Domain)
	if selectedDomain == "" {
		return nil, ErrDomainNotAllowed
	}

	if input.IPSource != "" && s.cfg.Mailbox.MaxPerIP > 0 {
		count, err := s.store.CountMailboxesByIP(input.IPSource)
		if err != nil {
			return nil, err
		}
		if count >= s.cfg.Mailbox.MaxPerIP {
			return nil, ErrTooManyMailboxes
		}
	}

	localPart, err := s.resolveLocalPart(input.Prefix)
	if err != nil {
		return nil, err
	}

	address := fmt.Sprintf("%s@%s", localPart, selectedDomain)
	if err := s.emailValidator.ValidateEmail(address); err != nil {
		return nil, ErrPrefixInvalid
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.cfg.Mailbox.DefaultTTL
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	mailbox := &domain.Mailbox{
		ID:        uuid.NewString(),
		Address:   address,
		LocalPart: localPart,
		Domain:    selectedDomain,
		Token:     s.generateToken(32),
		CreatedAt: now,
		ExpiresAt: &expiresAt,
		IsActive:  true,
		IPSource:  input.IPSource,
	}

	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}
	s.invalidateCache(mailbox.Address)

	return mailbox, nil
}

// AllowedDomains 返回允许创建邮箱的域名列表。
func (s *MailboxService) AllowedDomains() []string {
	return append([]string(nil), s.cfg.Mailbox.AllowedDomains...)
}

// Get 根据 ID 获取邮箱。
func (s *MailboxService) Get(id string) (*domain.Mailbox, error) {
	return s.store.GetMailbox(id)
}

// GetByAddress 根据邮箱地址获取邮箱。
func (s *MailboxService) GetByAddress(address string) (*domain.Mailbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrDomainNotAllowed
	}
	return s.store.GetMailboxByAddress(address)
}

// List 返回全部邮箱快照。
func (s *MailboxService) List() []domain.Mailbox {
	return s.store.ListMailboxes()
}

// Delete 删除指定邮箱。
func (s *MailboxService) Delete(id string) error {
	mailbox, err := s.store.GetMailbox(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMailbox(id); err != nil {
		return err
	}
	s.invalidateCache(mailbox.Address)
	return nil
}

// Deactivate 停用邮箱。停用后入站投递与过期表现一致。
func (s *MailboxService) Deactivate(id string) error {
	mailbox, err := s.store.GetMailbox(id)
	if err != nil {
		return err
	}
	if err := s.store.SetMailboxActive(id, false); err != nil {
		return err
	}
	s.invalidateCache(mailbox.Address)
	return nil
}

// ExtendTTL 延长邮箱有效期。
func (s *MailboxService) ExtendTTL(id string, ttl time.Duration) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailbox(id)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.cfg.Mailbox.DefaultTTL
	}
	expiresAt := time.Now().UTC().Add(ttl)
	mailbox.ExpiresAt = &expiresAt
	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}
	s.invalidateCache(mailbox.Address)
	return mailbox, nil
}

// ResolveLive 查询地址对应的可收信邮箱。
//
// 地址不存在、已停用或已过期时统一返回 (nil, false)，
// 三种情况对调用方不可区分，过期邮箱不能泄露自身的存在。
func (s *MailboxService) ResolveLive(address string) (*domain.Mailbox, bool) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, false
	}

	mailbox := s.lookup(address)
	if mailbox == nil || !mailbox.Live(time.Now().UTC()) {
		return nil, false
	}
	return mailbox, true
}

// lookup 依次查询缓存与主存储。
func (s *MailboxService) lookup(address string) *domain.Mailbox {
	ctx := context.Background()

	if s.cache != nil {
		cached, err := s.cache.GetMailboxByAddress(ctx, address)
		if err != nil {
			s.log.Warn("mailbox cache lookup failed", zap.Error(err))
		} else if cached != nil {
			return cached
		}
	}

	mailbox, err := s.store.GetMailboxByAddress(address)
	if err != nil {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.CacheMailbox(ctx, mailbox); err != nil {
			s.log.Warn("mailbox cache store failed", zap.Error(err))
		}
	}
	return mailbox
}

// CleanupExpired 删除已过期邮箱，返回删除数量。
func (s *MailboxService) CleanupExpired() (int, error) {
	return s.store.DeleteExpiredMailboxes()
}

func (s *MailboxService) invalidateCache(address string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAddress(context.Background(), address); err != nil {
		s.log.Warn("mailbox cache invalidation failed",
			zap.String("address", address),
			zap.Error(err),
		)
	}
}

// pickDomain 挑选合法的邮箱域名。
func (s *MailboxService) pickDomain(requested string) string {
	if requested == "" {
		return s.cfg.Mailbox.AllowedDomains[0]
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if _, ok := s.domainSet[requested]; ok {
		return requested
	}
	return ""
}

// resolveLocalPart 生成或验证邮箱前缀。
func (s *MailboxService) resolveLocalPart(prefix string) (string, error) {
	if prefix == "" {
		return s.generateRandomLocalPart(), nil
	}
	prefix = strings.ToLower(prefix)
	if err := s.emailValidator.ValidateLocalPart(prefix); err != nil {
		return "", ErrPrefixInvalid
	}
	return prefix, nil
}

// generateRandomLocalPart 生成随机前缀。
func (s *MailboxService) generateRandomLocalPart() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}

// generateToken 生成邮箱访问令牌。包级随机源自带锁，
// 可被并发的创建请求安全使用。
func (s *MailboxService) generateToken(length int) string {
	b := make([]rune, length)
	for i := 0; i < length; i++ {
		b[i] = s.tokenAlphabet[rand.Intn(len(s.tokenAlphabet))]
	}
	return string(b)
}
