package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error helper
func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// internalError 记录错误并返回 500
func internalError(c *gin.Context, message string, err error) {
	c.Error(err)
	respondError(c, http.StatusInternalServerError, message)
}

// decodeJSON 解析请求体，格式错误时按空输入处理，交由后续校验报错
func decodeJSON[T any](c *gin.Context) T {
	var v T
	if err := c.ShouldBindJSON(&v); err != nil {
		var zero T
		return zero
	}
	return v
}
