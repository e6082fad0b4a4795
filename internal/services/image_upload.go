package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"profilesite/internal/logger"
)

var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileNotFound    = errors.New("file not found")
)

// 允许通过文件接口访问的扩展名
var servedImageTypes = map[string]string{
	".webp": "image/webp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// SavedImage 上传结果
type SavedImage struct {
	URL       string        `json:"url"`
	Filename  string        `json:"filename"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	SizeBytes int           `json:"sizeBytes"`
	Outcome   EncodeOutcome `json:"-"`
}

// ImageStorage 将压缩后的图片按年月写入本地目录
type ImageStorage struct {
	root      string
	urlPrefix string
	processor *ImageProcessor
	now       func() time.Time
}

// NewImageStorage root 为上传根目录，urlPrefix 为对外访问前缀（如 /api/uploads）
func NewImageStorage(root, urlPrefix string, processor *ImageProcessor) *ImageStorage {
	return &ImageStorage{
		root:      root,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		processor: processor,
		now:       time.Now,
	}
}

// Save 压缩并保存图片，处理失败时不写入任何文件
func (s *ImageStorage) Save(ctx context.Context, data []byte, kind ImageKind) (*SavedImage, error) {
	processed, err := s.processor.Process(ctx, data, kind)
	if err != nil {
		return nil, fmt.Errorf("图片处理失败: %w", err)
	}
	if processed.Outcome == OutcomeBestEffort {
		logger.L.Warn().
			Str("kind", string(kind)).
			Int("size", processed.SizeBytes).
			Int("max", kind.Budget().Max).
			Msg("image exceeds size budget after final resize")
	}

	now := s.now()
	year, month := now.Format("2006"), now.Format("01")
	dir := filepath.Join(s.root, "blog", year, month)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	filename, err := newImageFilename(now)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(dir, filename, processed.Data); err != nil {
		return nil, err
	}

	return &SavedImage{
		URL:       s.urlPrefix + "/" + path.Join("blog", year, month, filename),
		Filename:  filename,
		Width:     processed.Width,
		Height:    processed.Height,
		SizeBytes: processed.SizeBytes,
		Outcome:   processed.Outcome,
	}, nil
}

// Resolve 将访问路径映射为磁盘路径，拒绝目录穿越和非图片扩展名
func (s *ImageStorage) Resolve(relPath string) (string, string, error) {
	rel := strings.TrimPrefix(relPath, "/")
	if rel == "" || strings.ContainsAny(rel, "\\\x00") {
		return "", "", ErrInvalidPath
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			logger.Security("path_traversal").Str("path", relPath).Msg("upload path rejected")
			return "", "", ErrInvalidPath
		}
	}

	contentType, ok := servedImageTypes[strings.ToLower(path.Ext(rel))]
	if !ok {
		return "", "", ErrInvalidFileType
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", "", fmt.Errorf("解析上传目录失败: %w", err)
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		logger.Security("path_traversal").Str("path", relPath).Msg("upload path escapes root")
		return "", "", ErrInvalidPath
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", "", ErrFileNotFound
	}
	return abs, contentType, nil
}

// newImageFilename <毫秒时间戳>-<12 位随机十六进制>.webp
func newImageFilename(now time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("生成文件名失败: %w", err)
	}
	return fmt.Sprintf("%d-%s.webp", now.UnixMilli(), hex.EncodeToString(b)), nil
}

// writeFileAtomic 先写同目录临时文件再重命名，文件不会以半成品状态出现
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}
