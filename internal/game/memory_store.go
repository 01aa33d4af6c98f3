package game

import (
	"context"
	"sync"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

type voteRecord struct {
	Round     int
	VoterID   string
	TargetID  string
	Rationale string
	At        int64
}

type chatRecord struct {
	Round         int
	Channel       string
	ParticipantID string
	Text          string
	At            int64
}

// MemoryStore 以内存方式保存对局数据，主要用于测试。
type MemoryStore struct {
	mu        sync.RWMutex
	votes     map[string][]voteRecord
	chats     map[string][]chatRecord
	snapshots map[string]Snapshot
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		votes:     make(map[string][]voteRecord),
		chats:     make(map[string][]chatRecord),
		snapshots: make(map[string]Snapshot),
	}
}

// AppendVote 实现 Store 接口。
func (m *MemoryStore) AppendVote(_ context.Context, matchID string, round int, voterID, targetID, rationale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[matchID] = append(m.votes[matchID], voteRecord{
		Round:     round,
		VoterID:   voterID,
		TargetID:  targetID,
		Rationale: rationale,
		At:        time.Now().Unix(),
	})
	return nil
}

// AppendChat 实现 Store 接口。
func (m *MemoryStore) AppendChat(_ context.Context, matchID string, round int, channel, participantID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[matchID] = append(m.chats[matchID], chatRecord{
		Round:         round,
		Channel:       channel,
		ParticipantID: participantID,
		Text:          text,
		At:            time.Now().Unix(),
	})
	return nil
}

// SaveSnapshot 实现 Store 接口。
func (m *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ID] = snap
	return nil
}

// LoadSnapshot 实现 Store 接口。
func (m *MemoryStore) LoadSnapshot(_ context.Context, matchID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[matchID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "对局快照不存在")
	}
	clone := snap
	clone.Slots = append([]SlotSnapshot(nil), snap.Slots...)
	return &clone, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
