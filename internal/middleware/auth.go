package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AdminSessionKey session 中保存管理员邮箱的键
const AdminSessionKey = "admin_email"

// IsAdmin 当前会话是否已登录管理员
func IsAdmin(c *gin.Context) bool {
	session := sessions.Default(c)
	email, ok := session.Get(AdminSessionKey).(string)
	return ok && email != ""
}

// AdminRequired 未登录时返回 401 JSON
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
