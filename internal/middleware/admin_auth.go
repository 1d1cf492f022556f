package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/auth"
)

// AdminAuth 管理员认证中间件。
type AdminAuth struct {
	manager *auth.Manager
}

// NewAdminAuth 创建管理员认证中间件。
func NewAdminAuth(manager *auth.Manager) *AdminAuth {
	return &AdminAuth{manager: manager}
}

// RequireAdmin 要求请求携带有效的管理令牌。
func (aa *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !aa.manager.Enabled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": http.StatusForbidden,
				"msg":  "管理接口未启用",
			})
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "缺少管理令牌",
			})
			return
		}

		if err := aa.manager.Verify(parts[1]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "管理令牌无效",
			})
			return
		}
		c.Next()
	}
}
