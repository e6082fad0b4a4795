package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"profilesite/internal/db"
	"profilesite/internal/models"
	"profilesite/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50

	postCacheTTL = time.Minute
)

// PostRepository 文章持久化
type PostRepository interface {
	List(ctx context.Context, offset, limit int) ([]models.Post, int64, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	DeleteBySlug(ctx context.Context, slug string) error
}

// PostInput 新建/编辑文章的请求体
type PostInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"imageurl"`
}

var postMessages = map[string]string{
	"title.required":   "Title is required",
	"title.max":        "Title max 200 chars",
	"content.required": "Content is required",
	"imageUrl":         "Invalid image URL",
}

// PostPage 分页结果
type PostPage struct {
	Items    []models.Post
	Total    int64
	Page     int
	PageSize int
}

// Pages 总页数，没有文章时为 0
func (p *PostPage) Pages() int {
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// PostService 文章读写，公开读取走本地缓存，写入后整体失效
type PostService struct {
	repo     PostRepository
	cache    *utils.Cache
	validate *validator.Validate
}

func NewPostService(repo PostRepository, cache *utils.Cache) *PostService {
	return &PostService{
		repo:     repo,
		cache:    cache,
		validate: newValidator(),
	}
}

// List 公开分页列表（带缓存）
func (s *PostService) List(ctx context.Context, page, pageSize int) (*PostPage, error) {
	page = max(page, 1)
	pageSize = min(max(pageSize, 1), MaxPageSize)

	key := "posts:" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
	if cached, ok := s.cacheGet(key); ok {
		return cached.(*PostPage), nil
	}

	result, err := s.list(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	s.cacheSet(key, result)
	return result, nil
}

// AdminList 后台列表，不走缓存
func (s *PostService) AdminList(ctx context.Context, page int) (*PostPage, error) {
	return s.list(ctx, max(page, 1), DefaultPageSize)
}

func (s *PostService) list(ctx context.Context, page, pageSize int) (*PostPage, error) {
	posts, total, err := s.repo.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询文章列表失败: %w", err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return &PostPage{Items: posts, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get 按 slug 获取文章（带缓存）
func (s *PostService) Get(ctx context.Context, postSlug string) (*models.Post, error) {
	key := "post:" + postSlug
	if cached, ok := s.cacheGet(key); ok {
		return cached.(*models.Post), nil
	}

	post, err := s.repo.FindBySlug(ctx, postSlug)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文章失败: %w", err)
	}
	s.cacheSet(key, post)
	return post, nil
}

// Create 新建文章，slug 由标题生成，冲突时追加 -2、-3 ...
func (s *PostService) Create(ctx context.Context, in PostInput) (*models.Post, error) {
	in = normalizePostInput(in)
	if err := validateStruct(s.validate, &in, postMessages); err != nil {
		return nil, err
	}

	postSlug, err := s.uniqueSlug(ctx, in.Title)
	if err != nil {
		return nil, err
	}

	content := utils.SanitizePostHTML(in.Content)
	post := &models.Post{
		Slug:     postSlug,
		Title:    in.Title,
		Content:  content,
		ImageURL: coverImage(in.ImageURL, content),
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("保存文章失败: %w", err)
	}

	s.invalidate()
	return post, nil
}

// Update 修改标题、正文和封面，slug 保持不变
func (s *PostService) Update(ctx context.Context, postSlug string, in PostInput) (*models.Post, error) {
	in = normalizePostInput(in)
	if err := validateStruct(s.validate, &in, postMessages); err != nil {
		return nil, err
	}

	post, err := s.repo.FindBySlug(ctx, postSlug)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文章失败: %w", err)
	}

	post.Title = in.Title
	post.Content = utils.SanitizePostHTML(in.Content)
	post.ImageURL = coverImage(in.ImageURL, post.Content)
	if err := s.repo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("更新文章失败: %w", err)
	}

	s.invalidate()
	return post, nil
}

// Delete 删除文章及其评论
func (s *PostService) Delete(ctx context.Context, postSlug string) error {
	err := s.repo.DeleteBySlug(ctx, postSlug)
	if errors.Is(err, db.ErrNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("删除文章失败: %w", err)
	}

	s.invalidate()
	return nil
}

func (s *PostService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "post"
	}

	candidate := base
	for i := 2; ; i++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("检查 slug 失败: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

func (s *PostService) cacheGet(key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *PostService) cacheSet(key string, v interface{}) {
	if s.cache != nil {
		s.cache.Set(key, v, postCacheTTL)
	}
}

func (s *PostService) invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func normalizePostInput(in PostInput) PostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if strings.TrimSpace(in.Content) == "" {
		in.Content = ""
	}
	return in
}

// coverImage 未指定封面时取正文第一张图
func coverImage(imageURL, content string) *string {
	if imageURL == "" {
		imageURL = utils.FirstImageSrc(content)
	}
	if imageURL == "" {
		return nil
	}
	return &imageURL
}
