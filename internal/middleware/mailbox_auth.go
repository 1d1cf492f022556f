package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/service"
)

// MailboxAuth 邮箱 Token 认证中间件。
type MailboxAuth struct {
	mailboxes *service.MailboxService
	log       *zap.Logger
}

// NewMailboxAuth 创建邮箱认证中间件。
func NewMailboxAuth(mailboxes *service.MailboxService, log *zap.Logger) *MailboxAuth {
	return &MailboxAuth{mailboxes: mailboxes, log: log}
}

// RequireMailboxToken 要求请求携带有效的邮箱访问令牌。
// 校验通过后邮箱实体写入上下文键 "mailbox"。
func (ma *MailboxAuth) RequireMailboxToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		mailboxID := c.Param("id")
		if mailboxID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code": http.StatusBadRequest,
				"msg":  "缺少邮箱 ID",
			})
			return
		}

		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "缺少邮箱访问令牌",
			})
			return
		}

		mailbox, err := ma.mailboxes.Get(mailboxID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"code": http.StatusNotFound,
				"msg":  "邮箱不存在",
			})
			return
		}

		if mailbox.Token != token {
			ma.log.Warn("invalid mailbox token",
				zap.String("mailbox_id", mailboxID),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "邮箱访问令牌无效",
			})
			return
		}

		c.Set("mailbox", mailbox)
		c.Next()
	}
}

// extractToken 依次从 Authorization、X-Mailbox-Token 与查询参数提取令牌。
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if token := c.GetHeader("X-Mailbox-Token"); token != "" {
		return token
	}
	return c.Query("token")
}
