package db

import (
	"context"

	"profilesite/internal/models"

	"gorm.io/gorm"
)

// PostStore 基于 gorm 的文章持久化
type PostStore struct {
	db *gorm.DB
}

func NewPostStore(conn *gorm.DB) *PostStore {
	return &PostStore{db: conn}
}

// List 按创建时间倒序分页查询，同时返回总数
func (s *PostStore) List(ctx context.Context, offset, limit int) ([]models.Post, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *PostStore) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&post).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

func (s *PostStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostStore) Create(ctx context.Context, post *models.Post) error {
	return s.db.WithContext(ctx).Create(post).Error
}

func (s *PostStore) Update(ctx context.Context, post *models.Post) error {
	return s.db.WithContext(ctx).Save(post).Error
}

// DeleteBySlug 删除文章及其评论；文章不存在时返回 ErrNotFound
func (s *PostStore) DeleteBySlug(ctx context.Context, slug string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Where("slug = ?", slug).First(&post).Error; err != nil {
			return translate(err)
		}
		// sqlite 默认不启用外键约束，显式删除评论
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
}
