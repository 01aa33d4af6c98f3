package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"Traitors-Arena/pkg/logger"
)

// MemberRole 表示订阅者在某个对局房间里的身份。
type MemberRole string

const (
	MemberPlayer    MemberRole = "player"
	MemberTraitor   MemberRole = "traitor"
	MemberSpectator MemberRole = "spectator"
)

// Delivery 是一次投递给订阅者的事件。
type Delivery struct {
	Audience Audience
	Event    Event
}

// Subscriber 是 Hub 上的一个事件接收端。每个订阅者持有自己的缓冲
// 通道；缓冲写满时事件直接丢弃，慢消费者不会阻塞对局推进。
type Subscriber struct {
	ID            string
	ParticipantID string

	ch  chan Delivery
	hub *Hub

	mu     sync.Mutex
	rooms  map[string]MemberRole
	closed bool
}

// Events 返回订阅者的接收通道。
func (s *Subscriber) Events() <-chan Delivery { return s.ch }

// Join 将订阅者加入某个对局房间，身份由调用方根据净化视图确定。
func (s *Subscriber) Join(matchID string, role MemberRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[matchID] = role
}

// Leave 将订阅者移出对局房间。
func (s *Subscriber) Leave(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, matchID)
}

func (s *Subscriber) roleIn(matchID string) (MemberRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.rooms[matchID]
	return role, ok
}

// deliver 在订阅者锁内非阻塞投递。通道关闭与投递互斥,
// 注销中的订阅者不会被写入已关闭的通道。
func (s *Subscriber) deliver(d Delivery) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- d:
		return true
	default:
		return false
	}
}

// shutdown 关闭接收通道,幂等。
func (s *Subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Hub 是进程内的广播实现：维护显式的受众注册表
// （订阅者 → 房间成员身份），Publish 按受众筛选后逐个投递。
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscriber
	bufferSize int
	logger     *slog.Logger
}

// NewHub 创建进程内广播 Hub。
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs:       make(map[string]*Subscriber),
		bufferSize: bufferSize,
		logger:     logger.Named("fanout"),
	}
}

// Subscribe 注册一个订阅者。participantID 为空表示纯观战连接。
func (h *Hub) Subscribe(participantID string) *Subscriber {
	sub := &Subscriber{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		ch:            make(chan Delivery, h.bufferSize),
		hub:           h,
		rooms:         make(map[string]MemberRole),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe 注销订阅者并关闭其通道。
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	h.mu.Unlock()
	if ok {
		sub.shutdown()
	}
}

// Publish 将事件投递给受众内的全部订阅者。尽力而为，至多一次。
func (h *Hub) Publish(_ context.Context, audience Audience, event Event) error {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if h.matches(sub, audience) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, sub := range targets {
		if !sub.deliver(Delivery{Audience: audience, Event: event}) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("事件投递被丢弃",
			slog.String("event", event.EventName()),
			slog.String("match_id", audience.MatchID),
			slog.Int("dropped", dropped),
		)
	}
	return nil
}

func (h *Hub) matches(sub *Subscriber, audience Audience) bool {
	switch audience.Kind {
	case AudienceParticipant:
		return sub.ParticipantID != "" && sub.ParticipantID == audience.ParticipantID
	case AudienceMatch:
		_, ok := sub.roleIn(audience.MatchID)
		return ok
	case AudienceSpectators:
		role, ok := sub.roleIn(audience.MatchID)
		return ok && role == MemberSpectator
	case AudienceTraitors:
		role, ok := sub.roleIn(audience.MatchID)
		return ok && role == MemberTraitor
	default:
		return false
	}
}

// Close 注销全部订阅者。
func (h *Hub) Close() error {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for id, sub := range h.subs {
		delete(h.subs, id)
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.shutdown()
	}
	return nil
}

var _ Publisher = (*Hub)(nil)
