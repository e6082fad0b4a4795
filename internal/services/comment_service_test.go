package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"profilesite/internal/db"
	"profilesite/internal/models"
)

// memoryComments 内存版评论仓库
type memoryComments struct {
	mu      sync.Mutex
	nextID  uint
	items   map[uint]models.Comment
	created int
}

func newMemoryComments() *memoryComments {
	return &memoryComments{items: map[uint]models.Comment{}}
}

func (m *memoryComments) ListByPost(_ context.Context, postID uint) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comment
	for id := uint(1); id <= m.nextID; id++ {
		if c, ok := m.items[id]; ok && c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryComments) FindByID(_ context.Context, id uint) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (m *memoryComments) Create(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.items[c.ID] = *c
	m.created++
	return nil
}

// insert 直接写入，绕过层级限制，用于构造深链
func (m *memoryComments) insert(postID uint, parent *uint) uint {
	c := &models.Comment{PostID: postID, ParentID: parent, Name: "seed", Content: "seed"}
	m.Create(context.Background(), c)
	return c.ID
}

type memoryPosts map[string]*models.Post

func (m memoryPosts) FindBySlug(_ context.Context, slug string) (*models.Post, error) {
	if p, ok := m[slug]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func newTestCommentService(t *testing.T) (*CommentService, *memoryComments, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	t.Cleanup(limiter.Stop)

	comments := newMemoryComments()
	posts := memoryPosts{
		"hello": {ID: 1, Slug: "hello"},
		"other": {ID: 2, Slug: "other"},
	}
	svc := NewCommentService(comments, posts, limiter, CommentRateLimit)
	svc.now = clock.Now
	return svc, comments, clock
}

func validInput() CommentInput {
	return CommentInput{Name: "Ann", Email: "ann@example.com", Content: "Nice post!"}
}

func int64Ptr(v int64) *int64 { return &v }

func TestSubmitTopLevel(t *testing.T) {
	svc, comments, clock := newTestCommentService(t)

	in := CommentInput{Name: "  Ann  ", Email: "  Ann@Example.COM ", Content: "  Nice post!  "}
	res, err := svc.Submit(context.Background(), "hello", in, "1.2.3.4")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Reparented || res.Comment.ParentID != nil {
		t.Errorf("Expected top-level comment, got %+v", res)
	}
	if res.Comment.Name != "Ann" || res.Comment.Content != "Nice post!" {
		t.Errorf("Expected trimmed values, got %+v", res.Comment)
	}
	if res.Comment.Replies == nil || len(res.Comment.Replies) != 0 {
		t.Errorf("Expected empty replies")
	}
	if !res.Comment.CreatedAt.Equal(clock.Now()) {
		t.Errorf("Expected createdAt from clock")
	}

	stored, _ := comments.FindByID(context.Background(), res.Comment.ID)
	if stored.Email != "ann@example.com" || stored.PostID != 1 {
		t.Errorf("Unexpected stored comment %+v", stored)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, comments, _ := newTestCommentService(t)

	cases := []struct {
		name  string
		input CommentInput
		field string
		msg   string
	}{
		{"short name", CommentInput{Name: " A ", Email: "a@example.com", Content: "hello"}, "name", "Name min 2 chars"},
		{"bad email", CommentInput{Name: "Ann", Email: "nope", Content: "hello"}, "email", "Invalid email"},
		{"missing email", CommentInput{Name: "Ann", Content: "hello"}, "email", "Invalid email"},
		{"short content", CommentInput{Name: "Ann", Email: "a@example.com", Content: "  ab  "}, "content", "Comment min 3 chars"},
		{"honeypot", CommentInput{Name: "Ann", Email: "a@example.com", Content: "hello", Honeypot: "http://spam"}, "honeypot", "Bot detected"},
		{"bad parent", CommentInput{Name: "Ann", Email: "a@example.com", Content: "hello", ParentID: int64Ptr(-3)}, "parentId", "Invalid parent id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), "hello", tc.input, "10.0.0."+tc.name)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Fields[tc.field] != tc.msg {
				t.Errorf("Expected %s=%q, got %v", tc.field, tc.msg, verr.Fields)
			}
		})
	}

	if comments.created != 0 {
		t.Errorf("Expected nothing persisted, got %d", comments.created)
	}
}

func TestSubmitPostAndParentChecks(t *testing.T) {
	svc, comments, _ := newTestCommentService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "missing", validInput(), "ip"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Expected ErrPostNotFound, got %v", err)
	}

	in := validInput()
	in.ParentID = int64Ptr(42)
	if _, err := svc.Submit(ctx, "hello", in, "ip"); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("Expected ErrParentNotFound, got %v", err)
	}

	// 父评论属于另一篇文章
	foreign := comments.insert(2, nil)
	in.ParentID = int64Ptr(int64(foreign))
	if _, err := svc.Submit(ctx, "hello", in, "ip"); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("Expected ErrParentNotFound for foreign parent, got %v", err)
	}
}

func TestSubmitDepthClamp(t *testing.T) {
	svc, comments, _ := newTestCommentService(t)
	ctx := context.Background()

	// 深度 0..4 的链：c0 <- c1 <- c2 <- c3 <- c4
	chain := []uint{comments.insert(1, nil)}
	for i := 1; i <= 4; i++ {
		parent := chain[i-1]
		chain = append(chain, comments.insert(1, &parent))
	}

	cases := []struct {
		parentDepth int
		wantParent  uint
		reparented  bool
	}{
		{0, chain[0], false},
		{1, chain[1], false},
		{2, chain[2], false},
		{3, chain[2], true},
		{4, chain[2], true},
	}
	for _, tc := range cases {
		in := validInput()
		in.ParentID = int64Ptr(int64(chain[tc.parentDepth]))

		res, err := svc.Submit(ctx, "hello", in, "depth-test")
		if err != nil {
			t.Fatalf("depth %d: Submit failed: %v", tc.parentDepth, err)
		}
		if res.Comment.ParentID == nil || *res.Comment.ParentID != tc.wantParent {
			t.Errorf("depth %d: expected parent %d, got %v", tc.parentDepth, tc.wantParent, res.Comment.ParentID)
		}
		if res.Reparented != tc.reparented {
			t.Errorf("depth %d: expected reparented=%v", tc.parentDepth, tc.reparented)
		}
	}

	// 任何评论都不会到达 MaxCommentDepth 层（种子数据除外）
	roots, _, err := svc.Tree(ctx, "hello")
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	seeded := map[uint]bool{}
	for _, id := range chain {
		seeded[id] = true
	}
	var walk func(nodes []*CommentNode, depth int)
	walk = func(nodes []*CommentNode, depth int) {
		for _, n := range nodes {
			if !seeded[n.ID] && depth >= MaxCommentDepth {
				t.Errorf("Comment %d stored at depth %d", n.ID, depth)
			}
			walk(n.Replies, depth+1)
		}
	}
	walk(roots, 0)
}

func TestSubmitRateLimited(t *testing.T) {
	svc, comments, clock := newTestCommentService(t)
	ctx := context.Background()

	for i := 0; i < CommentRateLimit.MaxRequests; i++ {
		if _, err := svc.Submit(ctx, "hello", validInput(), "9.9.9.9"); err != nil {
			t.Fatalf("Submit %d failed: %v", i+1, err)
		}
	}

	clock.Advance(90 * time.Second)
	_, err := svc.Submit(ctx, "hello", validInput(), "9.9.9.9")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if rl.RetryAfter != 810 {
		t.Errorf("Expected retryAfter 810, got %d", rl.RetryAfter)
	}
	if comments.created != CommentRateLimit.MaxRequests {
		t.Errorf("Expected %d comments, got %d", CommentRateLimit.MaxRequests, comments.created)
	}

	// 限流先于其他检查：不存在的文章同样返回 429
	if _, err := svc.Submit(ctx, "missing", validInput(), "9.9.9.9"); !errors.As(err, &rl) {
		t.Errorf("Expected rate limit before post lookup, got %v", err)
	}
}

func TestCommentTree(t *testing.T) {
	svc, _, _ := newTestCommentService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, "hello", validInput(), "a")
	if err != nil {
		t.Fatal(err)
	}
	reply := validInput()
	reply.ParentID = int64Ptr(int64(first.Comment.ID))
	if _, err := svc.Submit(ctx, "hello", reply, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, "other", validInput(), "a"); err != nil {
		t.Fatal(err)
	}

	roots, total, err := svc.Tree(ctx, "hello")
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if total != 2 || len(roots) != 1 || len(roots[0].Replies) != 1 {
		t.Errorf("Unexpected tree: total=%d roots=%d", total, len(roots))
	}

	if _, _, err := svc.Tree(ctx, "missing"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Expected ErrPostNotFound, got %v", err)
	}
}
