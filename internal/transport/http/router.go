// Package httptransport 提供 REST API 路由与处理器。
package httptransport

import (
	"errors"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempbox/backend/internal/auth"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// RouterDependencies 路由器依赖项。
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	AuthManager    *auth.Manager
	WebSocketHub   *websocket.Hub
	Metrics        *monitoring.Metrics
	Health         healthcheck.Handler
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Mailbox-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		mailboxes: deps.MailboxService,
		messages:  deps.MessageService,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}
	adminHandler := NewAdminHandler(deps.AuthManager, deps.MailboxService, deps.MessageService)

	mailboxAuth := middleware.NewMailboxAuth(deps.MailboxService, deps.Logger)
	adminAuth := middleware.NewAdminAuth(deps.AuthManager)
	createLimit := middleware.NewIPRateLimiter(30)

	if deps.Health != nil {
		router.GET("/health", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/domains", handler.listDomains)

		mailboxRoutes := v1.Group("/mailboxes")
		{
			mailboxRoutes.POST("", createLimit.Handler(), handler.createMailbox)

			mailboxRoutes.GET("/:id", mailboxAuth.RequireMailboxToken(), handler.getMailbox)
			mailboxRoutes.DELETE("/:id", mailboxAuth.RequireMailboxToken(), handler.deleteMailbox)
			mailboxRoutes.POST("/:id/extend", mailboxAuth.RequireMailboxToken(), handler.extendMailbox)

			mailboxRoutes.GET("/:id/messages", mailboxAuth.RequireMailboxToken(), handler.listMessages)
			mailboxRoutes.GET("/:id/messages/search", mailboxAuth.RequireMailboxToken(), handler.searchMessages)
			mailboxRoutes.GET("/:id/messages/:messageId", mailboxAuth.RequireMailboxToken(), handler.getMessage)
			mailboxRoutes.POST("/:id/messages/:messageId/read", mailboxAuth.RequireMailboxToken(), handler.markMessageRead)
			mailboxRoutes.DELETE("/:id/messages/:messageId", mailboxAuth.RequireMailboxToken(), handler.deleteMessage)
			mailboxRoutes.DELETE("/:id/messages", mailboxAuth.RequireMailboxToken(), handler.clearMessages)

			if deps.WebSocketHub != nil {
				mailboxRoutes.GET("/:id/ws", mailboxAuth.RequireMailboxToken(), func(c *gin.Context) {
					if err := deps.WebSocketHub.Subscribe(c.Writer, c.Request, c.Param("id")); err != nil {
						deps.Logger.Warn("websocket upgrade failed", zap.Error(err))
					}
				})
			}
		}

		adminRoutes := v1.Group("/admin")
		{
			adminRoutes.POST("/login", adminHandler.Login)
			adminRoutes.GET("/mailboxes", adminAuth.RequireAdmin(), adminHandler.ListMailboxes)
			adminRoutes.DELETE("/mailboxes/:id", adminAuth.RequireAdmin(), adminHandler.DeleteMailbox)
			adminRoutes.POST("/cleanup", adminAuth.RequireAdmin(), adminHandler.TriggerCleanup)
			adminRoutes.GET("/stats", adminAuth.RequireAdmin(), adminHandler.Stats)
		}
	}

	return router
}

type createMailboxRequest struct {
	Prefix    string `json:"prefix"`
	Domain    string `json:"domain"`
	ExpiresIn string `json:"expiresIn"`
}

type mailboxResponse struct {
	ID        string     `json:"id"`
	Address   string     `json:"address"`
	LocalPart string     `json:"localPart"`
	Domain    string     `json:"domain"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// listDomains 返回允许创建邮箱的域名列表。
func (h *Handler) listDomains(c *gin.Context) {
	Success(c, gin.H{"domains": h.mailboxes.AllowedDomains()})
}

// createMailbox 创建临时邮箱。
func (h *Handler) createMailbox(c *gin.Context) {
	var req createMailboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	var ttl time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			BadRequest(c, MsgInvalidDuration)
			return
		}
		ttl = d
	}

	mailbox, err := h.mailboxes.Create(service.CreateMailboxInput{
		Prefix:   req.Prefix,
		Domain:   req.Domain,
		IPSource: c.ClientIP(),
		TTL:      ttl,
	})
	if err != nil {
		switch err {
		case service.ErrDomainNotAllowed, service.ErrPrefixInvalid:
			BadRequest(c, GetErrorMessage(err))
		case service.ErrTooManyMailboxes:
			TooManyRequests(c, MsgTooManyMailboxes)
		default:
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.MailboxesCreated.Inc()
	}
	Created(c, toMailboxResponse(mailbox))
}

// getMailbox 获取邮箱详情。邮箱已由中间件验证并写入上下文。
func (h *Handler) getMailbox(c *gin.Context) {
	mailboxValue, _ := c.Get("mailbox")
	mailbox := mailboxValue.(*domain.Mailbox)
	Success(c, toMailboxResponse(mailbox))
}

// deleteMailbox 删除邮箱及其全部邮件。
func (h *Handler) deleteMailbox(c *gin.Context) {
	if err := h.mailboxes.Delete(c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			NotFound(c, MsgMailboxNotFound)
		} else {
			InternalError(c, MsgMailboxDeleteFailed)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.MailboxesDeleted.Inc()
	}
	NoContent(c)
}

type extendMailboxRequest struct {
	ExpiresIn string `json:"expiresIn"`
}

// extendMailbox 延长邮箱有效期。
func (h *Handler) extendMailbox(c *gin.Context) {
	var req extendMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	var ttl time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			BadRequest(c, MsgInvalidDuration)
			return
		}
		ttl = d
	}

	mailbox, err := h.mailboxes.ExtendTTL(c.Param("id"), ttl)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			NotFound(c, MsgMailboxNotFound)
		} else {
			InternalError(c, MsgMailboxExtendFailed)
		}
		return
	}
	Success(c, toMailboxResponse(mailbox))
}

type messageListResponse struct {
	Items []domain.Message `json:"items"`
	Count int              `json:"count"`
}

// listMessages 返回邮箱内的全部邮件。
func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.messages.List(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			NotFound(c, MsgMailboxNotFound)
		} else {
			InternalError(c, MsgMessageListFailed)
		}
		return
	}
	Success(c, messageListResponse{Items: messages, Count: len(messages)})
}

// getMessage 查看单封邮件。
func (h *Handler) getMessage(c *gin.Context) {
	message, err := h.messages.Get(c.Param("id"), c.Param("messageId"))
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgInternalError)
		}
		return
	}
	Success(c, message)
}

// markMessageRead 标记邮件已读。
func (h *Handler) markMessageRead(c *gin.Context) {
	if err := h.messages.MarkRead(c.Param("id"), c.Param("messageId")); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgMessageMarkReadFailed)
		}
		return
	}
	NoContent(c)
}

// deleteMessage 删除单封邮件。
func (h *Handler) deleteMessage(c *gin.Context) {
	if err := h.messages.Delete(c.Param("id"), c.Param("messageId")); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
		} else {
			InternalError(c, MsgMessageDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// clearMessages 清空邮箱中的全部邮件。
func (h *Handler) clearMessages(c *gin.Context) {
	deleted, err := h.messages.ClearAll(c.Param("id"))
	if err != nil {
		InternalError(c, MsgMessageDeleteFailed)
		return
	}
	Success(c, gin.H{"deleted": deleted})
}

// searchMessages 在邮箱内搜索邮件。
func (h *Handler) searchMessages(c *gin.Context) {
	var query struct {
		Query      string `form:"q"`
		UnreadOnly bool   `form:"unreadOnly"`
		Limit      int    `form:"limit"`
		Offset     int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.messages.Search(domain.MessageSearchCriteria{
		MailboxID:  c.Param("id"),
		Query:      query.Query,
		UnreadOnly: query.UnreadOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		InternalError(c, MsgMessageSearchFailed)
		return
	}
	Success(c, result)
}

// toMailboxResponse 转换实体为响应体。
func toMailboxResponse(mailbox *domain.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:        mailbox.ID,
		Address:   mailbox.Address,
		LocalPart: mailbox.LocalPart,
		Domain:    mailbox.Domain,
		Token:     mailbox.Token,
		CreatedAt: mailbox.CreatedAt,
		ExpiresAt: mailbox.ExpiresAt,
	}
}
