package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/auth"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/service"
)

// AdminHandler 管理接口处理器。
type AdminHandler struct {
	manager   *auth.Manager
	mailboxes *service.MailboxService
	messages  *service.MessageService
}

// NewAdminHandler 创建管理处理器。
func NewAdminHandler(manager *auth.Manager, mailboxes *service.MailboxService, messages *service.MessageService) *AdminHandler {
	return &AdminHandler{
		manager:   manager,
		mailboxes: mailboxes,
		messages:  messages,
	}
}

type adminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login 管理员登录，返回访问令牌。
func (h *AdminHandler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	token, err := h.manager.Login(req.Password)
	if err != nil {
		switch err {
		case auth.ErrDisabled:
			Forbidden(c, MsgAdminDisabled)
		case auth.ErrInvalidCredentials:
			Unauthorized(c, MsgAdminLoginFailed)
		default:
			InternalError(c, MsgInternalError)
		}
		return
	}
	Success(c, gin.H{"token": token})
}

// ListMailboxes 返回全部邮箱快照。
func (h *AdminHandler) ListMailboxes(c *gin.Context) {
	mailboxes := h.mailboxes.List()
	Success(c, gin.H{
		"items": mailboxes,
		"count": len(mailboxes),
	})
}

// DeleteMailbox 强制删除指定邮箱。
func (h *AdminHandler) DeleteMailbox(c *gin.Context) {
	if err := h.mailboxes.Delete(c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			NotFound(c, MsgMailboxNotFound)
		} else {
			InternalError(c, MsgMailboxDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// TriggerCleanup 手动触发过期邮箱清理。
func (h *AdminHandler) TriggerCleanup(c *gin.Context) {
	removed, err := h.mailboxes.CleanupExpired()
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, gin.H{"removed": removed})
}

// Stats 返回系统统计信息。
func (h *AdminHandler) Stats(c *gin.Context) {
	mailboxes := h.mailboxes.List()

	active := 0
	total := len(mailboxes)
	messageCount := 0
	for i := range mailboxes {
		if mailboxes[i].IsActive {
			active++
		}
		if messages, err := h.messages.List(mailboxes[i].ID); err == nil {
			messageCount += len(messages)
		}
	}

	Success(c, gin.H{
		"mailboxes":       total,
		"activeMailboxes": active,
		"messages":        messageCount,
	})
}
