// Package redis 提供地址解析结果的 Redis 缓存。
// 入站投递对同一地址的查询非常密集，缓存挡在主存储之前。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tempbox/backend/internal/domain"
)

// Cache Redis 缓存实现。
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存实例并验证连通性。
func NewCache(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

func addressKey(address string) string {
	return "tempbox:mailbox:addr:" + strings.ToLower(strings.TrimSpace(address))
}

// CacheMailbox 按地址缓存邮箱信息。
func (c *Cache) CacheMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	data, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, addressKey(mailbox.Address), data, c.ttl).Err()
}

// GetMailboxByAddress 返回缓存的邮箱信息，未命中时返回 (nil, nil)。
func (c *Cache) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	data, err := c.client.Get(ctx, addressKey(address)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// InvalidateAddress 删除地址对应的缓存条目。
func (c *Cache) InvalidateAddress(ctx context.Context, address string) error {
	return c.client.Del(ctx, addressKey(address)).Err()
}

// Health 检查 Redis 连接状态。
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 客户端。
func (c *Cache) Close() error {
	return c.client.Close()
}
