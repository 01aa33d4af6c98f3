package game

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/rules"
	"Traitors-Arena/pkg/logger"
)

// Seat 是报名排队时携带的参赛者信息。
type Seat struct {
	ParticipantID string
	Name          string
}

type queueEntry struct {
	seat       Seat
	enqueuedAt time.Time
}

// Queue 是先到先得的匹配队列。凑满规则要求的座位数后立即建局：
// 在被选中的名单内均匀随机分配内鬼，建局事件按参赛者私发。
type Queue struct {
	mu      sync.Mutex
	entries []queueEntry
	pending map[string]struct{}

	registry  *Registry
	clock     *Clock
	publisher fanout.Publisher
	rules     rules.MatchRules
	logger    *slog.Logger
}

// NewQueue 创建匹配队列。
func NewQueue(registry *Registry, clock *Clock, publisher fanout.Publisher, r rules.MatchRules) *Queue {
	if publisher == nil {
		publisher = fanout.NoopPublisher{}
	}
	return &Queue{
		pending:   make(map[string]struct{}),
		registry:  registry,
		clock:     clock,
		publisher: publisher,
		rules:     r,
		logger:    logger.Named("queue"),
	}
}

// Enqueue 登记一名等待匹配的参赛者。重复报名与在局中报名都会被拒绝。
// 队列凑满一局的座位数时立即建局。
func (q *Queue) Enqueue(ctx context.Context, seat Seat) error {
	if _, ok := q.registry.LiveMatchOf(seat.ParticipantID); ok {
		return ErrAlreadyInMatch
	}

	q.mu.Lock()
	if _, ok := q.pending[seat.ParticipantID]; ok {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	q.pending[seat.ParticipantID] = struct{}{}
	q.entries = append(q.entries, queueEntry{seat: seat, enqueuedAt: time.Now()})

	var roster []Seat
	if len(q.entries) >= q.rules.RosterSize {
		roster = make([]Seat, q.rules.RosterSize)
		for i := 0; i < q.rules.RosterSize; i++ {
			roster[i] = q.entries[i].seat
			delete(q.pending, roster[i].ParticipantID)
		}
		q.entries = append([]queueEntry(nil), q.entries[q.rules.RosterSize:]...)
	}
	q.mu.Unlock()

	if roster != nil {
		q.formMatch(ctx, roster)
	}
	return nil
}

// Dequeue 将参赛者移出等待队列，不在队列中时为空操作。
func (q *Queue) Dequeue(participantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[participantID]; !ok {
		return
	}
	delete(q.pending, participantID)
	for i, entry := range q.entries {
		if entry.seat.ParticipantID == participantID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
}

// Waiting 返回当前等待人数。
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// formMatch 为选中的名单建局：随机分配内鬼、登记对局、私发建局
// 事件，最后交给时钟开始计时。
func (q *Queue) formMatch(ctx context.Context, roster []Seat) {
	m := &Match{
		ID:           uuid.NewString(),
		Status:       MatchStarting,
		TraitorCount: q.rules.TraitorCount,
		Slots:        make([]*Slot, len(roster)),
		CreatedAt:    time.Now().Unix(),
	}

	// 均匀随机的内鬼分配：打乱座位下标后取前 K 个。
	order := rand.Perm(len(roster))
	traitorIdx := make(map[int]struct{}, q.rules.TraitorCount)
	for _, idx := range order[:q.rules.TraitorCount] {
		traitorIdx[idx] = struct{}{}
	}
	for i, seat := range roster {
		role := RoleInnocent
		if _, ok := traitorIdx[i]; ok {
			role = RoleTraitor
		}
		m.Slots[i] = &Slot{
			ParticipantID: seat.ParticipantID,
			Name:          seat.Name,
			Role:          role,
			Status:        SlotAlive,
		}
	}

	q.registry.Add(m)
	q.logger.Info("建局成功",
		slog.String("match_id", m.ID),
		slog.Int("roster", len(roster)),
		slog.Int("traitors", q.rules.TraitorCount),
	)

	names := make([]string, len(m.Slots))
	for i, slot := range m.Slots {
		names[i] = slot.Name
	}
	var teammates []string
	for _, slot := range m.Slots {
		if slot.Role == RoleTraitor {
			teammates = append(teammates, slot.ParticipantID)
		}
	}
	for _, slot := range m.Slots {
		var mates []string
		if slot.Role == RoleTraitor {
			for _, id := range teammates {
				if id != slot.ParticipantID {
					mates = append(mates, id)
				}
			}
		}
		ev := NewMatchFound(m.ID, slot.Role, names, mates)
		if err := q.publisher.Publish(ctx, fanout.Participant(m.ID, slot.ParticipantID), ev); err != nil {
			q.logger.Warn("建局事件投递失败",
				slog.Any("error", err),
				slog.String("participant_id", slot.ParticipantID),
			)
		}
	}

	q.clock.Start(m)
}
