package smtp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/pool"
)

// Config SMTP 服务配置。
type Config struct {
	BindAddr        string
	Hostname        string
	MaxMessageBytes int64
	MaxLineBytes    int
	MaxConnections  int
	AcceptPerSecond int
	IdleTimeout     time.Duration
}

// Server 入站 SMTP 服务器：监听端口、限流接入，并为每个连接
// 启动一个会话 goroutine。
type Server struct {
	cfg       Config
	deliverer *Deliverer
	pool      *pool.WorkerPool
	metrics   *monitoring.Metrics
	log       *zap.Logger

	limiter  *rate.Limiter
	listener net.Listener

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup
}

// NewServer 创建 SMTP 服务器。
func NewServer(cfg Config, deliverer *Deliverer, workers *pool.WorkerPool, metrics *monitoring.Metrics, log *zap.Logger) *Server {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 4096
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 10 << 20
	}

	var limiter *rate.Limiter
	if cfg.AcceptPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AcceptPerSecond), cfg.AcceptPerSecond)
	}

	return &Server{
		cfg:       cfg,
		deliverer: deliverer,
		pool:      workers,
		metrics:   metrics,
		log:       log,
		limiter:   limiter,
		sessions:  make(map[*session]struct{}),
	}
}

// ListenAndServe 监听并处理入站连接，直到 ctx 取消。
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.log.Info("smtp server listening",
		zap.String("addr", s.cfg.BindAddr),
		zap.String("hostname", s.cfg.Hostname))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return nil
			}
			s.log.Error("smtp accept failed", zap.Error(err))
			continue
		}

		if !s.admit(conn) {
			continue
		}
		s.startSession(conn)
	}
}

// admit 执行接入限流与并发上限检查，拒绝时直接关闭连接。
func (s *Server) admit(conn net.Conn) bool {
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.Warn("smtp connection rejected by rate limit",
			zap.String("remote", conn.RemoteAddr().String()))
		conn.Write([]byte("421 Service not available\r\n"))
		conn.Close()
		return false
	}

	if s.cfg.MaxConnections > 0 {
		s.mu.Lock()
		active := len(s.sessions)
		s.mu.Unlock()
		if active >= s.cfg.MaxConnections {
			s.log.Warn("smtp connection rejected, too many connections",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Int("active", active))
			conn.Write([]byte("421 Service not available\r\n"))
			conn.Close()
			return false
		}
	}
	return true
}

func (s *Server) startSession(conn net.Conn) {
	sess := newSession(s, conn)

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SMTPConnectionsTotal.Inc()
		s.metrics.SMTPConnectionsActive.Inc()
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.SMTPConnectionsActive.Dec()
			}
			s.wg.Done()
		}()
		sess.serve()
	}()
}

// shutdown 关闭全部在途会话并等待其退出。
func (s *Server) shutdown() {
	s.mu.Lock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.log.Warn("smtp shutdown timed out waiting for sessions")
	}
	s.log.Info("smtp server stopped")
}
