package db

import (
	"context"

	"profilesite/internal/models"

	"gorm.io/gorm"
)

// CommentStore 基于 gorm 的评论持久化
type CommentStore struct {
	db *gorm.DB
}

func NewCommentStore(conn *gorm.DB) *CommentStore {
	return &CommentStore{db: conn}
}

// ListByPost 返回文章下全部评论，按创建时间升序
func (s *CommentStore) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *CommentStore) FindByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, translate(err)
	}
	return &comment, nil
}

func (s *CommentStore) Create(ctx context.Context, comment *models.Comment) error {
	return s.db.WithContext(ctx).Create(comment).Error
}
