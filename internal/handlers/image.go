package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"profilesite/internal/services"

	"github.com/gin-gonic/gin"
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// multipart 边界、表单字段等额外开销
const multipartOverhead = 1 << 20

// ImageHandler 图片上传与访问
type ImageHandler struct {
	storage  *services.ImageStorage
	fetcher  *services.RemoteFetcher
	maxBytes int64
}

// NewImageHandler 创建 ImageHandler 实例
func NewImageHandler(storage *services.ImageStorage, fetcher *services.RemoteFetcher, maxBytes int64) *ImageHandler {
	return &ImageHandler{storage: storage, fetcher: fetcher, maxBytes: maxBytes}
}

// Upload 上传本地图片 (POST /api/admin/upload?type=cover|inline)
func (h *ImageHandler) Upload(c *gin.Context) {
	kind := services.ParseImageKind(c.Query("type"))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file too large", "maxSize": h.maxSizeLabel()})
			return
		}
		respondError(c, http.StatusBadRequest, "no file provided")
		return
	}

	if header.Size > h.maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large", "maxSize": h.maxSizeLabel()})
		return
	}

	mime, _, _ := strings.Cut(header.Header.Get("Content-Type"), ";")
	if !allowedUploadTypes[strings.ToLower(strings.TrimSpace(mime))] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid file type",
			"allowed": []string{"image/jpeg", "image/png", "image/webp"},
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "details": err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "details": err.Error()})
		return
	}

	h.save(c, data, kind)
}

// UploadFromURL 通过 URL 抓取远程图片 (POST /api/admin/upload-url?type=cover|inline)
func (h *ImageHandler) UploadFromURL(c *gin.Context) {
	kind := services.ParseImageKind(c.Query("type"))
	body := decodeJSON[struct {
		URL string `json:"url"`
	}](c)

	data, err := h.fetcher.Fetch(c.Request.Context(), body.URL)
	if err != nil {
		reason, ok := services.FetchReason(err)
		if !ok {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "details": err.Error()})
			return
		}

		status := http.StatusBadRequest
		if errors.Is(err, services.ErrFetchTimeout) {
			status = http.StatusRequestTimeout
		}
		c.Error(err)
		respondError(c, status, reason)
		return
	}

	h.save(c, data, kind)
}

func (h *ImageHandler) maxSizeLabel() string {
	return strconv.FormatInt(h.maxBytes>>20, 10) + "MB"
}

func (h *ImageHandler) save(c *gin.Context, data []byte, kind services.ImageKind) {
	saved, err := h.storage.Save(c.Request.Context(), data, kind)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"url":       saved.URL,
		"width":     saved.Width,
		"height":    saved.Height,
		"sizeBytes": saved.SizeBytes,
	})
}

// Serve 访问已上传的图片 (GET /api/uploads/*filepath)
func (h *ImageHandler) Serve(c *gin.Context) {
	rel := c.Param("filepath")
	if strings.Trim(rel, "/") == "" {
		respondError(c, http.StatusBadRequest, "path required")
		return
	}

	abs, contentType, err := h.storage.Resolve(rel)
	switch {
	case errors.Is(err, services.ErrInvalidPath):
		respondError(c, http.StatusBadRequest, "invalid path")
		return
	case errors.Is(err, services.ErrInvalidFileType):
		respondError(c, http.StatusBadRequest, "invalid file type")
		return
	case errors.Is(err, services.ErrFileNotFound):
		respondError(c, http.StatusNotFound, "file not found")
		return
	case err != nil:
		internalError(c, "failed to serve file", err)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.File(abs)
}
