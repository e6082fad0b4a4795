package handlers

import (
	"errors"
	"math"
	"net/http"

	"profilesite/internal/services"
	"profilesite/internal/utils"

	"github.com/gin-gonic/gin"
)

// PostHandler 文章的公开读取与后台管理
type PostHandler struct {
	posts *services.PostService
}

func NewPostHandler(posts *services.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

// List 公开列表 (GET /api/posts?page=&pageSize=)
func (h *PostHandler) List(c *gin.Context) {
	page := utils.ClampInt(c.Query("page"), 1, 1, math.MaxInt32)
	pageSize := utils.ClampInt(c.Query("pageSize"), services.DefaultPageSize, 1, services.MaxPageSize)

	result, err := h.posts.List(c.Request.Context(), page, pageSize)
	if err != nil {
		internalError(c, "failed_to_list_posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     result.Items,
		"total":     result.Total,
		"page":      result.Page,
		"pageCount": max(1, result.Pages()),
	})
}

// Get 文章详情 (GET /api/posts/:slug, GET /api/admin/posts/:slug)
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.posts.Get(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, services.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		internalError(c, "failed_to_get_post", err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// AdminList 后台列表，每页 12 篇 (GET /api/admin/posts?page=)
func (h *PostHandler) AdminList(c *gin.Context) {
	page := utils.ClampInt(c.Query("page"), 1, 1, math.MaxInt32)

	result, err := h.posts.AdminList(c.Request.Context(), page)
	if err != nil {
		internalError(c, "failed_to_list_posts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  result.Page,
		"pages": result.Pages(),
	})
}

// Create 新建文章 (POST /api/admin/posts)
func (h *PostHandler) Create(c *gin.Context) {
	input := decodeJSON[services.PostInput](c)

	post, err := h.posts.Create(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err, "failed_to_create_post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "post": post})
}

// Update 编辑文章 (PUT /api/admin/posts/:slug)
func (h *PostHandler) Update(c *gin.Context) {
	input := decodeJSON[services.PostInput](c)

	post, err := h.posts.Update(c.Request.Context(), c.Param("slug"), input)
	if err != nil {
		h.writeError(c, err, "failed_to_update_post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "post": post})
}

// Delete 删除文章及其评论 (DELETE /api/admin/posts/:slug)
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		h.writeError(c, err, "failed_to_delete_post")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *PostHandler) writeError(c *gin.Context, err error, fallback string) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "issues": validationErr.Fields})
	case errors.Is(err, services.ErrPostNotFound):
		respondError(c, http.StatusNotFound, "not_found")
	default:
		internalError(c, fallback, err)
	}
}
