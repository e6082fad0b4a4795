package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"profilesite/internal/config"
	"profilesite/internal/models"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    filepath.Join(t.TempDir(), "test.db"),
	}
	conn, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { Close(conn) })
	return conn
}

func TestPostStoreCRUD(t *testing.T) {
	conn := openTestDB(t)
	store := NewPostStore(conn)
	ctx := context.Background()

	for i, s := range []string{"first", "second", "third"} {
		post := &models.Post{Slug: s, Title: s, Content: "<p>x</p>", CreatedAt: time.Now().Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, post); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	posts, total, err := store.List(ctx, 0, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(posts) != 2 {
		t.Fatalf("Expected 2 of 3 posts, got %d of %d", len(posts), total)
	}
	if posts[0].Slug != "third" {
		t.Errorf("Expected newest first, got %s", posts[0].Slug)
	}

	exists, err := store.SlugExists(ctx, "second")
	if err != nil || !exists {
		t.Errorf("Expected slug to exist, got %v (%v)", exists, err)
	}

	if _, err := store.FindBySlug(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteBySlug(ctx, "second"); err != nil {
		t.Fatalf("DeleteBySlug failed: %v", err)
	}
	if err := store.DeleteBySlug(ctx, "second"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCommentStore(t *testing.T) {
	conn := openTestDB(t)
	posts := NewPostStore(conn)
	comments := NewCommentStore(conn)
	ctx := context.Background()

	post := &models.Post{Slug: "hello", Title: "Hello", Content: "<p>x</p>"}
	if err := posts.Create(ctx, post); err != nil {
		t.Fatalf("Create post failed: %v", err)
	}

	base := time.Now()
	root := &models.Comment{PostID: post.ID, Name: "Ann", Email: "a@example.com", Content: "root", CreatedAt: base}
	if err := comments.Create(ctx, root); err != nil {
		t.Fatalf("Create root failed: %v", err)
	}
	reply := &models.Comment{PostID: post.ID, ParentID: &root.ID, Name: "Bob", Email: "b@example.com", Content: "reply", CreatedAt: base.Add(time.Second)}
	if err := comments.Create(ctx, reply); err != nil {
		t.Fatalf("Create reply failed: %v", err)
	}

	found, err := comments.FindByID(ctx, reply.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.ParentID == nil || *found.ParentID != root.ID {
		t.Errorf("Expected parent %d, got %v", root.ID, found.ParentID)
	}

	list, err := comments.ListByPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListByPost failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != root.ID {
		t.Fatalf("Unexpected list: %+v", list)
	}

	if _, err := comments.FindByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := posts.DeleteBySlug(ctx, "hello"); err != nil {
		t.Fatalf("DeleteBySlug failed: %v", err)
	}
	list, _ = comments.ListByPost(ctx, post.ID)
	if len(list) != 0 {
		t.Errorf("Expected comments removed with post, got %d", len(list))
	}
}
