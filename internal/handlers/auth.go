package handlers

import (
	"net/http"

	"profilesite/internal/logger"
	"profilesite/internal/middleware"
	"profilesite/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AuthHandler 管理员登录
type AuthHandler struct {
	admin *services.AdminAuth
}

func NewAuthHandler(admin *services.AdminAuth) *AuthHandler {
	return &AuthHandler{admin: admin}
}

// Login 校验管理员账号并写入 session (POST /api/auth/login)
func (h *AuthHandler) Login(c *gin.Context) {
	body := decodeJSON[struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}](c)

	if err := h.admin.Verify(body.Email, body.Password); err != nil {
		logger.Security("admin_login_failed").Str("ip", c.ClientIP()).Msg("admin login rejected")
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.AdminSessionKey, h.admin.Email())
	if err := session.Save(); err != nil {
		internalError(c, "login failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout 清除 session (POST /api/auth/logout)
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		internalError(c, "logout failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Session 当前登录状态 (GET /api/auth/session)
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"admin": middleware.IsAdmin(c)})
}
