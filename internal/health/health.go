// Package health 提供存活与就绪探针。
package health

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"

	"tempbox/backend/internal/domain"
	redicache "tempbox/backend/internal/storage/redis"
)

// NewHandler 创建健康检查处理器。
//
// 存活检查只验证进程没有协程泄漏；就绪检查验证主存储与
// 可选的 Redis 缓存可达。
func NewHandler(store domain.Store, cache *redicache.Cache) healthcheck.Handler {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(500))

	h.AddReadinessCheck("store", func() error {
		return store.Health()
	})

	if cache != nil {
		h.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return cache.Health(ctx)
		})
	}

	return h
}
