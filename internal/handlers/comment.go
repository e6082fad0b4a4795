package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"profilesite/internal/services"

	"github.com/gin-gonic/gin"
)

// CommentHandler 文章评论
type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// List 评论树 (GET /api/posts/:slug/comments)
func (h *CommentHandler) List(c *gin.Context) {
	roots, total, err := h.comments.Tree(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, services.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		internalError(c, "failed to get comments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": roots, "total": total})
}

// Create 发表评论或回复 (POST /api/posts/:slug/comments)
func (h *CommentHandler) Create(c *gin.Context) {
	input := decodeJSON[services.CommentInput](c)

	res, err := h.comments.Submit(c.Request.Context(), c.Param("slug"), input, c.ClientIP())
	if err != nil {
		var rateErr *services.RateLimitedError
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &rateErr):
			c.Header("Retry-After", strconv.Itoa(rateErr.RetryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retryAfter": rateErr.RetryAfter})
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "issues": validationErr.Fields})
		case errors.Is(err, services.ErrParentNotFound):
			respondError(c, http.StatusBadRequest, "parent comment not found")
		case errors.Is(err, services.ErrPostNotFound):
			respondError(c, http.StatusNotFound, "post not found")
		default:
			internalError(c, "failed to create comment", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "comment": res.Comment, "reparented": res.Reparented})
}
