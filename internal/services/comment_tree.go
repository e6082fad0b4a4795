package services

import (
	"sort"
	"time"

	"profilesite/internal/models"
)

// CommentNode 评论树节点，replies 永远不为 null
type CommentNode struct {
	ID        uint           `json:"id"`
	ParentID  *uint          `json:"parentId"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	Replies   []*CommentNode `json:"replies"`
}

func newCommentNode(c *models.Comment) *CommentNode {
	return &CommentNode{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		Replies:   []*CommentNode{},
	}
}

// BuildCommentTree 将扁平评论列表组装为树，只返回根节点。
// 父评论不在列表中（或指向自身）的评论作为根节点出现。
func BuildCommentTree(comments []models.Comment) []*CommentNode {
	index := make(map[uint]*CommentNode, len(comments))
	ordered := make([]*CommentNode, 0, len(comments))

	for i := range comments {
		if _, dup := index[comments[i].ID]; dup {
			continue
		}
		node := newCommentNode(&comments[i])
		index[node.ID] = node
		ordered = append(ordered, node)
	}

	roots := make([]*CommentNode, 0)
	linked := make(map[uint]uint, len(ordered))
	for _, node := range ordered {
		if node.ParentID != nil && *node.ParentID != node.ID {
			if parent, ok := index[*node.ParentID]; ok && !formsCycle(linked, parent.ID, node.ID) {
				parent.Replies = append(parent.Replies, node)
				linked[node.ID] = parent.ID
				continue
			}
		}
		roots = append(roots, node)
	}

	sortCommentNodes(roots)
	return roots
}

// formsCycle 沿已建立的父链向上查找，判断 child 是否已是 parent 的祖先
func formsCycle(linked map[uint]uint, parentID, childID uint) bool {
	for id, ok := parentID, true; ok; id, ok = linked[id] {
		if id == childID {
			return true
		}
	}
	return false
}

// sortCommentNodes 按创建时间稳定升序，递归处理子节点
func sortCommentNodes(nodes []*CommentNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
	for _, n := range nodes {
		sortCommentNodes(n.Replies)
	}
}

// CountCommentNodes 统计树中全部节点
func CountCommentNodes(roots []*CommentNode) int {
	total := 0
	for _, n := range roots {
		total += 1 + CountCommentNodes(n.Replies)
	}
	return total
}
