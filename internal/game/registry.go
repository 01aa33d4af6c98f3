package game

import (
	"sync"
	"time"
)

// Registry 持有当前全部在册对局。对局在建局时登记，结算完成后
// 保留一个窗口期供赛后查询，窗口期结束才真正移除。
// 除注册表本身外，各对局之间不共享任何可变状态。
type Registry struct {
	mu        sync.RWMutex
	matches   map[string]*Match
	seated    map[string]string // participantID → matchID，仅统计存活中的对局
	retention time.Duration
}

// NewRegistry 创建注册表。retention 为终局后的保留窗口。
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Registry{
		matches:   make(map[string]*Match),
		seated:    make(map[string]string),
		retention: retention,
	}
}

// Add 登记一场新对局并记录所有座位的归属。
func (r *Registry) Add(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[m.ID] = m
	for _, slot := range m.Slots {
		r.seated[slot.ParticipantID] = m.ID
	}
}

// Get 返回指定对局，未登记时返回 ErrMatchNotFound。
func (r *Registry) Get(id string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// LiveMatchOf 返回参赛者当前所在的进行中对局 ID。
func (r *Registry) LiveMatchOf(participantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.seated[participantID]
	return id, ok
}

// Retire 在对局终结后解除座位归属，并在保留窗口结束后移除对局。
func (r *Registry) Retire(m *Match) {
	r.mu.Lock()
	for _, slot := range m.Slots {
		if r.seated[slot.ParticipantID] == m.ID {
			delete(r.seated, slot.ParticipantID)
		}
	}
	r.mu.Unlock()

	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.matches, m.ID)
		r.mu.Unlock()
	})
}

// Live 返回当前未终结的对局数量。
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, m := range r.matches {
		if m.Snapshot().Status != MatchEnded {
			count++
		}
	}
	return count
}
