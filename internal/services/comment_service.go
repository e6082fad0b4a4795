package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"profilesite/internal/db"
	"profilesite/internal/logger"
	"profilesite/internal/models"

	"github.com/go-playground/validator/v10"
)

// MaxCommentDepth 根评论深度为 0，回复最深落在 MaxCommentDepth-1 层
const MaxCommentDepth = 4

// 父链最多回溯的层数，防止异常数据导致死循环
const maxParentWalk = 64

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrParentNotFound = errors.New("parent comment not found")
)

// CommentRepository 评论持久化
type CommentRepository interface {
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	FindByID(ctx context.Context, id uint) (*models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
}

// PostFinder 按 slug 查找文章
type PostFinder interface {
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
}

// CommentInput 提交评论的请求体
type CommentInput struct {
	Name     string `json:"name" validate:"min=2,max=60"`
	Email    string `json:"email" validate:"required,email"`
	Content  string `json:"content" validate:"min=3,max=2000"`
	Honeypot string `json:"honeypot" validate:"max=0"`
	ParentID *int64 `json:"parentId" validate:"omitempty,gt=0"`
}

// 字段 + 规则 -> 提示文案
var commentMessages = map[string]string{
	"name.min":    "Name min 2 chars",
	"name.max":    "Name max 60 chars",
	"email":       "Invalid email",
	"content.min": "Comment min 3 chars",
	"content.max": "Comment max 2000 chars",
	"honeypot":    "Bot detected",
	"parentId":    "Invalid parent id",
}

// RateLimitedError 触发限流，RetryAfter 为建议等待秒数
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfter)
}

// SubmitResult 新建评论；Reparented 表示因层级过深被挂到了更上层的祖先
type SubmitResult struct {
	Comment    *CommentNode
	Reparented bool
}

// CommentService 评论读取与提交
type CommentService struct {
	comments CommentRepository
	posts    PostFinder
	limiter  *RateLimiter
	rateCfg  RateLimitConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewCommentService(comments CommentRepository, posts PostFinder, limiter *RateLimiter, rateCfg RateLimitConfig) *CommentService {
	return &CommentService{
		comments: comments,
		posts:    posts,
		limiter:  limiter,
		rateCfg:  rateCfg,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Tree 返回文章的评论树及评论总数
func (s *CommentService) Tree(ctx context.Context, postSlug string) ([]*CommentNode, int, error) {
	post, err := s.findPost(ctx, postSlug)
	if err != nil {
		return nil, 0, err
	}

	comments, err := s.comments.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("查询评论失败: %w", err)
	}

	roots := BuildCommentTree(comments)
	return roots, CountCommentNodes(roots), nil
}

// Submit 提交评论：限流 -> 文章 -> 校验 -> 父评论与层级 -> 保存
func (s *CommentService) Submit(ctx context.Context, postSlug string, in CommentInput, clientKey string) (*SubmitResult, error) {
	if s.limiter != nil {
		res := s.limiter.Check(clientKey, s.rateCfg)
		if !res.Allowed {
			wait := res.RetryAfter(s.now())
			return nil, &RateLimitedError{RetryAfter: max(1, int(math.Ceil(wait.Seconds())))}
		}
	}

	post, err := s.findPost(ctx, postSlug)
	if err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Content = strings.TrimSpace(in.Content)
	if err := validateStruct(s.validate, &in, commentMessages); err != nil {
		return nil, err
	}

	var parentID *uint
	reparented := false
	if in.ParentID != nil {
		parent, err := s.comments.FindByID(ctx, uint(*in.ParentID))
		if errors.Is(err, db.ErrNotFound) || (err == nil && parent.PostID != post.ID) {
			return nil, ErrParentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("查询父评论失败: %w", err)
		}

		target, err := s.clampParent(ctx, parent)
		if err != nil {
			return nil, err
		}
		parentID = &target.ID
		reparented = target.ID != parent.ID
	}

	comment := &models.Comment{
		PostID:    post.ID,
		ParentID:  parentID,
		Name:      in.Name,
		Email:     in.Email,
		Content:   in.Content,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("保存评论失败: %w", err)
	}

	if reparented {
		logger.L.Debug().
			Uint("requested_parent", uint(*in.ParentID)).
			Uint("parent", *parentID).
			Msg("reply attached to shallower ancestor")
	}

	return &SubmitResult{Comment: newCommentNode(comment), Reparented: reparented}, nil
}

// clampParent 父评论深度达到 MaxCommentDepth-1 时，改挂到深度为 MaxCommentDepth-2 的祖先
func (s *CommentService) clampParent(ctx context.Context, parent *models.Comment) (*models.Comment, error) {
	// chain[0] 为父评论本身，chain[len-1] 为根
	chain := []*models.Comment{parent}
	cur := parent
	for cur.ParentID != nil && len(chain) <= maxParentWalk {
		next, err := s.comments.FindByID(ctx, *cur.ParentID)
		if errors.Is(err, db.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("查询祖先评论失败: %w", err)
		}
		chain = append(chain, next)
		cur = next
	}

	depth := len(chain) - 1
	if depth < MaxCommentDepth-1 {
		return parent, nil
	}
	return chain[depth-(MaxCommentDepth-2)], nil
}

func (s *CommentService) findPost(ctx context.Context, slug string) (*models.Post, error) {
	post, err := s.posts.FindBySlug(ctx, slug)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文章失败: %w", err)
	}
	return post, nil
}
