package game

import (
	"context"
	"sync"
	"time"
)

// SpectatorCounter 维护每场对局的观战人数。计数允许近似，
// 实现不可用时调用方将计数退化为零，绝不因此影响对局推进。
type SpectatorCounter interface {
	Incr(ctx context.Context, matchID string) (int64, error)
	Decr(ctx context.Context, matchID string) (int64, error)
	Count(ctx context.Context, matchID string) (int64, error)
}

// ViewCache 缓存观战者视角的净化状态，作为高频查询的快速路径。
// 缓存缺失或不可用都只是回退到实时投影。
type ViewCache interface {
	GetView(ctx context.Context, matchID string) ([]byte, bool)
	SetView(ctx context.Context, matchID string, payload []byte, ttl time.Duration)
}

// MemorySpectatorCounter 以内存方式计数，主要用于测试与单机部署。
type MemorySpectatorCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemorySpectatorCounter 创建内存计数器。
func NewMemorySpectatorCounter() *MemorySpectatorCounter {
	return &MemorySpectatorCounter{counts: make(map[string]int64)}
}

// Incr 实现 SpectatorCounter。
func (c *MemorySpectatorCounter) Incr(_ context.Context, matchID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[matchID]++
	return c.counts[matchID], nil
}

// Decr 实现 SpectatorCounter。
func (c *MemorySpectatorCounter) Decr(_ context.Context, matchID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[matchID] > 0 {
		c.counts[matchID]--
	}
	return c.counts[matchID], nil
}

// Count 实现 SpectatorCounter。
func (c *MemorySpectatorCounter) Count(_ context.Context, matchID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[matchID], nil
}

var _ SpectatorCounter = (*MemorySpectatorCounter)(nil)
