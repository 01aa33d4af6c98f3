package participant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是进程内的参赛者档案存储，用于开发与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Participant
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Participant)}
}

// Create 注册新参赛者。
func (s *MemoryStore) Create(_ context.Context, p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	clone := *p
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.profiles[p.ID] = &clone
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Get 查询参赛者档案。
func (s *MemoryStore) Get(_ context.Context, id string) (*Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// SaveStats 覆盖写入统计字段。
func (s *MemoryStore) SaveStats(_ context.Context, p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.profiles[p.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Rating = p.Rating
	stored.GamesPlayed = p.GamesPlayed
	stored.GamesWon = p.GamesWon
	stored.TraitorWins = p.TraitorWins
	stored.InnocentWins = p.InnocentWins
	stored.CurrentStreak = p.CurrentStreak
	stored.BestStreak = p.BestStreak
	stored.UnclaimedPoints = p.UnclaimedPoints
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// List 按积分降序返回排行榜。
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Participant, 0, len(s.profiles))
	for _, p := range s.profiles {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating == out[j].Rating {
			return out[i].ID < out[j].ID
		}
		return out[i].Rating > out[j].Rating
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close 实现 Store 接口,内存存储无需释放资源。
func (s *MemoryStore) Close() error { return nil }
