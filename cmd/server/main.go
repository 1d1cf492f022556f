package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempbox/backend/internal/auth"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/logger"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/pool"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage/memory"
	redicache "tempbox/backend/internal/storage/redis"
	sqlstore "tempbox/backend/internal/storage/sql"
	httptransport "tempbox/backend/internal/transport/http"
	"tempbox/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与入站 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting tempbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("domains", cfg.Mailbox.AllowedDomains),
	)

	// 存储层：配置了数据库则使用 SQL 存储，否则使用内存存储
	var store domain.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 可选的 Redis 地址解析缓存
	var cache *redicache.Cache
	if cfg.Redis.Enabled {
		cache, err = redicache.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer cache.Close()
		log.Info("redis address cache enabled", zap.String("addr", cfg.Redis.Address))
	}

	metrics := monitoring.NewMetrics()
	healthHandler := health.NewHandler(store, cache)

	mailboxService := service.NewMailboxService(store, cfg, log)
	if cache != nil {
		mailboxService.SetCache(cache)
	}
	messageService := service.NewMessageService(store)

	authManager := auth.NewManager(cfg.Admin.PasswordHash, cfg.Admin.JWTSecret, cfg.Admin.TokenExpiry)
	if !authManager.Enabled() {
		log.Warn("admin password hash not configured, admin API disabled")
	}

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	deliverer := smtp.NewDeliverer(mailboxService, messageService, wsHub, metrics, log)
	workerPool := pool.NewWorkerPool(cfg.SMTP.Workers, cfg.SMTP.QueueSize, log)

	smtpServer := smtp.NewServer(smtp.Config{
		BindAddr:        cfg.SMTP.BindAddr,
		Hostname:        cfg.SMTP.Hostname,
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
		MaxLineBytes:    cfg.SMTP.MaxLineBytes,
		MaxConnections:  cfg.SMTP.MaxConnections,
		AcceptPerSecond: cfg.SMTP.AcceptPerSecond,
		IdleTimeout:     cfg.SMTP.IdleTimeout,
	}, deliverer, workerPool, metrics, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		MessageService: messageService,
		AuthManager:    authManager,
		WebSocketHub:   wsHub,
		Metrics:        metrics,
		Health:         healthHandler,
		Logger:         log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerPool.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return smtpServer.ListenAndServe(groupCtx)
	})

	// 定时清理过期邮箱
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Mailbox.CleanupInterval)
		defer ticker.Stop()

		log.Info("starting expired mailbox cleanup task",
			zap.Duration("interval", cfg.Mailbox.CleanupInterval))

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				count, err := mailboxService.CleanupExpired()
				if err != nil {
					log.Error("failed to cleanup expired mailboxes", zap.Error(err))
					continue
				}
				if count > 0 {
					metrics.MailboxesExpired.Add(float64(count))
					log.Info("expired mailboxes cleaned up", zap.Int("count", count))
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", zap.Error(err))
		}
		workerPool.Stop()
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}
