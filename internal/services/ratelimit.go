package services

import (
	"sync"
	"time"

	"profilesite/internal/logger"

	"github.com/robfig/cron/v3"
)

// RateLimitConfig 固定窗口限流参数
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// CommentRateLimit 评论默认限流：每个 IP 15 分钟内最多 10 次
var CommentRateLimit = RateLimitConfig{
	Window:      15 * time.Minute,
	MaxRequests: 10,
}

// RateLimitResult 单次检查结果
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter 距离窗口重置的剩余时间
func (r RateLimitResult) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type rateLimitEntry struct {
	count   int
	resetAt time.Time
}

// RateLimiter 进程内的固定窗口计数器，按客户端标识（IP）计数。
// 多实例部署时各实例独立计数。
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time

	sweeper  *cron.Cron
	stopOnce sync.Once
}

// NewRateLimiter 创建限流器并立即启动后台清理任务，sweepEvery <= 0 时不启动
func NewRateLimiter(sweepEvery time.Duration) *RateLimiter {
	l := &RateLimiter{
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}

	if sweepEvery > 0 {
		l.sweeper = cron.New()
		l.sweeper.Schedule(cron.Every(sweepEvery), cron.FuncJob(func() {
			if n := l.Sweep(); n > 0 {
				logger.L.Debug().Int("evicted", n).Msg("rate limit sweep")
			}
		}))
		l.sweeper.Start()
	}
	return l
}

// Check 检查并累加 key 的请求计数
func (l *RateLimiter) Check(key string, cfg RateLimitConfig) RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]

	// 无记录或窗口已过期：开启新窗口
	if !ok || !now.Before(entry.resetAt) {
		entry = &rateLimitEntry{count: 1, resetAt: now.Add(cfg.Window)}
		l.entries[key] = entry
		return RateLimitResult{
			Allowed:   true,
			Remaining: cfg.MaxRequests - 1,
			ResetAt:   entry.resetAt,
		}
	}

	if entry.count >= cfg.MaxRequests {
		return RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   entry.resetAt,
		}
	}

	entry.count++
	return RateLimitResult{
		Allowed:   true,
		Remaining: cfg.MaxRequests - entry.count,
		ResetAt:   entry.resetAt,
	}
}

// Sweep 清理已过期的记录，返回清理数量
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len 当前记录数
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stop 停止后台清理任务，可重复调用
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() {
		if l.sweeper != nil {
			<-l.sweeper.Stop().Done()
		}
	})
}
