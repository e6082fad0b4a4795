package utils

import (
	"strconv"
	"strings"
)

// ClampInt 解析整数并限制在 [lo, hi]，解析失败时返回 def
func ClampInt(s string, def, lo, hi int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		i = def
	}
	return min(max(i, lo), hi)
}
