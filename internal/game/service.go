package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	xerrors "Traitors-Arena/internal/errors"
	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/pkg/logger"
)

// Service 汇聚对外的命令入口：报名、退出、刺杀提名、投票、聊天、
// 状态查询与观战计数。动作提交可以来自任意数量的并发参赛者，
// 同一提交者在阶段关闭前以最后一次提交为准。
type Service struct {
	registry   *Registry
	queue      *Queue
	clock      *Clock
	store      Store
	publisher  fanout.Publisher
	spectators SpectatorCounter
	views      ViewCache
	logger     *slog.Logger
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithSpectatorCounter 指定观战计数实现。
func WithSpectatorCounter(counter SpectatorCounter) ServiceOption {
	return func(s *Service) { s.spectators = counter }
}

// WithViewCache 指定观战视图缓存。
func WithViewCache(cache ViewCache) ServiceOption {
	return func(s *Service) { s.views = cache }
}

// NewService 构造对局服务。
func NewService(registry *Registry, queue *Queue, clock *Clock, store Store, publisher fanout.Publisher, opts ...ServiceOption) *Service {
	if publisher == nil {
		publisher = fanout.NoopPublisher{}
	}
	s := &Service{
		registry:   registry,
		queue:      queue,
		clock:      clock,
		store:      store,
		publisher:  publisher,
		spectators: NewMemorySpectatorCounter(),
		logger:     logger.Named("game"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// JoinQueue 将参赛者加入匹配队列。
func (s *Service) JoinQueue(ctx context.Context, seat Seat) error {
	if strings.TrimSpace(seat.ParticipantID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "参赛者 ID 不能为空")
	}
	return s.queue.Enqueue(ctx, seat)
}

// LeaveQueue 将参赛者移出匹配队列，不在队列中时为空操作。
func (s *Service) LeaveQueue(_ context.Context, participantID string) {
	s.queue.Dequeue(participantID)
}

// SubmitMurder 记录内鬼在刺杀阶段的目标提名。
// 自刺与刺杀队友在提交时即拒绝，不会留到裁决阶段。
func (s *Service) SubmitMurder(_ context.Context, matchID, participantID, targetID string) error {
	m, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status == MatchEnded {
		return ErrMatchEnded
	}
	if m.Phase != PhaseMurder {
		return ErrWrongPhase
	}
	actor := m.slotIndexLocked(participantID)
	if actor < 0 {
		return ErrNotInMatch
	}
	if !m.Slots[actor].Alive() {
		return ErrSlotDead
	}
	if m.Slots[actor].Role != RoleTraitor {
		return ErrWrongPhase
	}
	target := m.slotIndexLocked(targetID)
	if target < 0 || target == actor || !m.Slots[target].Alive() || m.Slots[target].Role == RoleTraitor {
		return ErrInvalidTarget
	}

	m.actions.setNomination(actor, target)
	s.maybeCloseLocked(m)
	return nil
}

// SubmitVote 记录存活座位在投票阶段的放逐票。弃权合法，
// 重复提交覆盖之前的选择。
func (s *Service) SubmitVote(ctx context.Context, matchID, participantID, targetID, rationale string) error {
	m, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.Status == MatchEnded {
		m.mu.Unlock()
		return ErrMatchEnded
	}
	if m.Phase != PhaseVoting {
		m.mu.Unlock()
		return ErrWrongPhase
	}
	voter := m.slotIndexLocked(participantID)
	if voter < 0 {
		m.mu.Unlock()
		return ErrNotInMatch
	}
	if !m.Slots[voter].Alive() {
		m.mu.Unlock()
		return ErrSlotDead
	}
	target := m.slotIndexLocked(targetID)
	if target < 0 || target == voter || !m.Slots[target].Alive() {
		m.mu.Unlock()
		return ErrInvalidTarget
	}

	round := m.Round
	m.actions.setVote(voter, target, rationale)
	s.maybeCloseLocked(m)
	m.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendVote(ctx, matchID, round, participantID, targetID, rationale); err != nil {
			s.logger.Warn("投票落库失败", slog.Any("error", err), slog.String("match_id", matchID))
		}
	}
	return nil
}

// maybeCloseLocked 在全部合法动作就位时触发阶段提前关闭。
// 调用方必须持有对局锁；关闭动作放到新协程，由时钟的关闭标志
// 与定时器竞争，最多生效一次。
func (s *Service) maybeCloseLocked(m *Match) {
	if m.actions.complete(m) {
		seq := m.phaseSeq
		go s.clock.ClosePhase(m, seq)
	}
}

// SubmitChat 记录并转发一条聊天消息。讨论与投票阶段的存活座位
// 在对局房间发言；刺杀阶段的存活内鬼在内鬼频道密谈。
func (s *Service) SubmitChat(ctx context.Context, matchID, participantID, text string) error {
	if strings.TrimSpace(text) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	m, err := s.registry.Get(matchID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.Status == MatchEnded {
		m.mu.Unlock()
		return ErrMatchEnded
	}
	idx := m.slotIndexLocked(participantID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotInMatch
	}
	if !m.Slots[idx].Alive() {
		m.mu.Unlock()
		return ErrSlotDead
	}

	var channel string
	switch m.Phase {
	case PhaseDiscussion, PhaseVoting:
		channel = ChannelMatch
	case PhaseMurder:
		if m.Slots[idx].Role != RoleTraitor {
			m.mu.Unlock()
			return ErrWrongPhase
		}
		channel = ChannelTraitors
	default:
		m.mu.Unlock()
		return ErrWrongPhase
	}
	round := m.Round
	slot := m.snapshotLocked().Slots[idx]
	m.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendChat(ctx, matchID, round, channel, participantID, text); err != nil {
			s.logger.Warn("聊天落库失败", slog.Any("error", err), slog.String("match_id", matchID))
		}
	}

	audience := fanout.Match(matchID)
	if channel == ChannelTraitors {
		audience = fanout.Traitors(matchID)
	}
	ev := NewChatPosted(matchID, round, channel, slot, text)
	if err := s.publisher.Publish(ctx, audience, ev); err != nil {
		s.logger.Warn("聊天广播失败", slog.Any("error", err), slog.String("match_id", matchID))
	}
	return nil
}

// State 返回观察者可见的对局净化视图。活跃对局实时投影；
// 已从注册表移除的对局回退到终局快照。
func (s *Service) State(ctx context.Context, matchID string, viewer Viewer) (MatchView, error) {
	spectator := viewer.ParticipantID == ""
	if spectator && s.views != nil {
		if payload, ok := s.views.GetView(ctx, matchID); ok {
			var view MatchView
			if err := json.Unmarshal(payload, &view); err == nil {
				return view, nil
			}
		}
	}

	var snap Snapshot
	if m, err := s.registry.Get(matchID); err == nil {
		snap = m.Snapshot()
	} else if s.store != nil {
		stored, loadErr := s.store.LoadSnapshot(ctx, matchID)
		if loadErr != nil {
			return MatchView{}, ErrMatchNotFound
		}
		snap = *stored
	} else {
		return MatchView{}, ErrMatchNotFound
	}

	view := ProjectView(snap, viewer)
	view.SpectatorCount = s.spectatorCount(ctx, matchID)

	if spectator && s.views != nil {
		if payload, err := json.Marshal(view); err == nil {
			s.views.SetView(ctx, matchID, payload, 2*time.Second)
		}
	}
	return view, nil
}

// SpectatorJoin 增加对局的观战计数并广播变化。
func (s *Service) SpectatorJoin(ctx context.Context, matchID string) int64 {
	count, err := s.spectators.Incr(ctx, matchID)
	if err != nil {
		s.logger.Warn("观战计数不可用", slog.Any("error", err), slog.String("match_id", matchID))
		return 0
	}
	s.publishSpectatorCount(ctx, matchID, count)
	return count
}

// SpectatorLeave 减少对局的观战计数并广播变化。
func (s *Service) SpectatorLeave(ctx context.Context, matchID string) int64 {
	count, err := s.spectators.Decr(ctx, matchID)
	if err != nil {
		s.logger.Warn("观战计数不可用", slog.Any("error", err), slog.String("match_id", matchID))
		return 0
	}
	s.publishSpectatorCount(ctx, matchID, count)
	return count
}

func (s *Service) publishSpectatorCount(ctx context.Context, matchID string, count int64) {
	if err := s.publisher.Publish(ctx, fanout.Match(matchID), NewSpectatorCount(matchID, count)); err != nil {
		s.logger.Warn("观战人数广播失败", slog.Any("error", err), slog.String("match_id", matchID))
	}
}

func (s *Service) spectatorCount(ctx context.Context, matchID string) int64 {
	count, err := s.spectators.Count(ctx, matchID)
	if err != nil {
		return 0
	}
	return count
}

// Registry 返回对局注册表，供预测与结算等模块只读使用。
func (s *Service) Registry() *Registry { return s.registry }
