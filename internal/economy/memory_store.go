package economy

import (
	"context"
	"sync"
)

type entryKey struct {
	matchID       string
	participantID string
}

// MemoryStore 是进程内的经济数据存储,用于开发与测试。
type MemoryStore struct {
	mu           sync.RWMutex
	settled      map[string]string
	entries      map[entryKey]SettlementEntry
	predictions  map[entryKey]*Prediction
	achievements map[entryKey]AchievementGrant
	claims       map[string][]Claim
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settled:      make(map[string]string),
		entries:      make(map[entryKey]SettlementEntry),
		predictions:  make(map[entryKey]*Prediction),
		achievements: make(map[entryKey]AchievementGrant),
		claims:       make(map[string][]Claim),
	}
}

func (s *MemoryStore) Settled(_ context.Context, matchID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.settled[matchID]
	return ok, nil
}

func (s *MemoryStore) MarkSettled(_ context.Context, matchID, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[matchID] = winner
	return nil
}

func (s *MemoryStore) EntryRecorded(_ context.Context, matchID, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[entryKey{matchID, participantID}]
	return ok, nil
}

func (s *MemoryStore) RecordEntry(_ context.Context, entry SettlementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey{entry.MatchID, entry.ParticipantID}] = entry
	return nil
}

func (s *MemoryStore) SavePrediction(_ context.Context, p *Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	clone.Suspects = append([]string(nil), p.Suspects...)
	s.predictions[entryKey{p.MatchID, p.ParticipantID}] = &clone
	return nil
}

func (s *MemoryStore) PredictionsByMatch(_ context.Context, matchID string) ([]*Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Prediction
	for key, p := range s.predictions {
		if key.matchID != matchID {
			continue
		}
		clone := *p
		clone.Suspects = append([]string(nil), p.Suspects...)
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) MarkPredictionScored(_ context.Context, id string, correct bool, award int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.predictions {
		if p.ID == id {
			p.Scored = true
			p.Correct = correct
			p.Award = award
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) HasAchievement(_ context.Context, participantID, achievementID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.achievements[entryKey{achievementID, participantID}]
	return ok, nil
}

func (s *MemoryStore) GrantAchievement(_ context.Context, grant AchievementGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey{grant.AchievementID, grant.ParticipantID}
	if _, ok := s.achievements[key]; ok {
		return nil
	}
	s.achievements[key] = grant
	return nil
}

func (s *MemoryStore) AchievementsOf(_ context.Context, participantID string) ([]AchievementGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AchievementGrant
	for key, grant := range s.achievements {
		if key.participantID == participantID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordClaim(_ context.Context, claim Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claim.ParticipantID] = append(s.claims[claim.ParticipantID], claim)
	return nil
}

func (s *MemoryStore) ClaimsOf(_ context.Context, participantID string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Claim(nil), s.claims[participantID]...), nil
}

func (s *MemoryStore) Close() error { return nil }
