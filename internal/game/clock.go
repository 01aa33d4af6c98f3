package game

import (
	"context"
	"log/slog"
	"time"

	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/observability/metrics"
	"Traitors-Arena/internal/rules"
	"Traitors-Arena/pkg/logger"
)

// Settler 在对局终结后执行一次性经济结算。实现必须幂等：
// 对同一对局重复调用不得重复入账。
type Settler interface {
	Settle(ctx context.Context, snap Snapshot) error
}

// Clock 驱动每场对局的阶段状态机，是唯一有权推进阶段、应用裁决
// 结果的组件。阶段在时间预算耗尽或全部合法动作提交完毕时关闭；
// 两个信号并发触发时由阶段实例的关闭标志保证恰好关闭一次。
type Clock struct {
	registry  *Registry
	rules     rules.Rules
	publisher fanout.Publisher
	store     Store
	settler   Settler
	logger    *slog.Logger

	settleRetries int
	settleBackoff time.Duration
}

// ClockOption 定义可选配置。
type ClockOption func(*Clock)

// WithSettleRetry 配置结算失败的重试策略。
func WithSettleRetry(retries int, backoff time.Duration) ClockOption {
	return func(c *Clock) {
		if retries > 0 {
			c.settleRetries = retries
		}
		if backoff > 0 {
			c.settleBackoff = backoff
		}
	}
}

// NewClock 构造阶段时钟。
func NewClock(registry *Registry, r rules.Rules, publisher fanout.Publisher, store Store, settler Settler, opts ...ClockOption) *Clock {
	if publisher == nil {
		publisher = fanout.NoopPublisher{}
	}
	c := &Clock{
		registry:      registry,
		rules:         r,
		publisher:     publisher,
		store:         store,
		settler:       settler,
		logger:        logger.Named("clock"),
		settleRetries: 5,
		settleBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Start 让一场新建对局进入 starting 阶段并开始计时。
func (c *Clock) Start(m *Match) {
	m.mu.Lock()
	m.Status = MatchStarting
	m.StartedAt = time.Now().Unix()
	seq := c.enterLocked(m, PhaseStarting)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	metrics.ObserveMatchStarted()
	c.publish(fanout.Match(m.ID), NewPhaseChanged(snap.ID, snap.Round, snap.Phase, time.Unix(snap.PhaseDeadline, 0)))
	c.schedule(m, seq)
}

// enterLocked 切换到新阶段并开启新的阶段实例。调用方必须持有对局锁，
// 随后负责调用 schedule 启动定时器。
func (c *Clock) enterLocked(m *Match, phase Phase) int {
	m.Phase = phase
	m.phaseSeq++
	m.phaseClosed = false
	m.actions = newActionSet(m.Round, phase)
	m.phaseDeadline = time.Now().Add(c.phaseDuration(phase))
	return m.phaseSeq
}

func (c *Clock) phaseDuration(phase Phase) time.Duration {
	switch phase {
	case PhaseStarting:
		return c.rules.StartingDuration()
	case PhaseMurder:
		return c.rules.MurderDuration()
	case PhaseDiscussion:
		return c.rules.DiscussionDuration()
	case PhaseVoting:
		return c.rules.VotingDuration()
	case PhaseReveal:
		return c.rules.RevealDuration()
	default:
		return time.Second
	}
}

// schedule 为当前阶段实例设置硬超时，保证零动作提交时对局依然推进。
func (c *Clock) schedule(m *Match, seq int) {
	m.mu.Lock()
	if m.phaseSeq != seq || m.phaseClosed {
		m.mu.Unlock()
		return
	}
	d := time.Until(m.phaseDeadline)
	if d < 0 {
		d = 0
	}
	m.timer = time.AfterFunc(d, func() { c.ClosePhase(m, seq) })
	m.mu.Unlock()
}

// ClosePhase 关闭指定的阶段实例并应用裁决。seq 不匹配或实例已关闭
// 时直接返回：超时与提前完成的竞争在此化解，对调用方永远不可见。
func (c *Clock) ClosePhase(m *Match, seq int) {
	m.mu.Lock()
	if m.phaseSeq != seq || m.phaseClosed || m.Status == MatchEnded {
		m.mu.Unlock()
		return
	}
	m.phaseClosed = true
	if m.timer != nil {
		m.timer.Stop()
	}

	var sideEvents []fanout.Event
	closing := m.Phase

	switch closing {
	case PhaseStarting:
		m.Status = MatchActive
		m.Round = 1

	case PhaseMurder:
		if victim, ok := resolveMurder(m.actions.orderedNominations()); ok {
			slot := m.Slots[victim]
			if slot.Alive() {
				slot.Status = SlotMurdered
				slot.DeathRound = m.Round
				sideEvents = append(sideEvents,
					NewParticipantDied(m.ID, m.Round, m.snapshotLocked().Slots[victim]))
			}
		}

	case PhaseReveal:
		m.Round++

	case PhaseVoting:
		if target, ok := resolveVote(m.actions.allVotes()); ok {
			slot := m.Slots[target]
			if slot.Alive() {
				slot.Status = SlotBanished
				slot.DeathRound = m.Round
				sideEvents = append(sideEvents,
					NewParticipantBanished(m.ID, m.Round, m.snapshotLocked().Slots[target]))
			}
		}
	}

	// 胜负检查只在有人进入终态的阶段后才可能改变结果，但每次关闭
	// 都执行一次代价极小，也覆盖了退化局面。
	winner, ended := evaluateWin(m.snapshotLocked())
	var nextSeq int
	if ended && closing != PhaseStarting {
		c.endLocked(m, winner)
	} else {
		nextSeq = c.enterLocked(m, c.nextPhase(closing))
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	metrics.ObservePhaseClosed(string(closing))

	for _, ev := range sideEvents {
		c.publish(fanout.Match(snap.ID), ev)
	}
	if snap.Status == MatchEnded {
		c.finish(m, snap)
		return
	}
	c.publish(fanout.Match(snap.ID), NewPhaseChanged(snap.ID, snap.Round, snap.Phase, time.Unix(snap.PhaseDeadline, 0)))
	c.schedule(m, nextSeq)
}

func (c *Clock) nextPhase(closing Phase) Phase {
	switch closing {
	case PhaseStarting, PhaseReveal:
		return PhaseMurder
	case PhaseMurder:
		return PhaseDiscussion
	case PhaseDiscussion:
		return PhaseVoting
	case PhaseVoting:
		return PhaseReveal
	default:
		return PhaseEnded
	}
}

// endLocked 终结对局。调用方必须持有对局锁。
func (c *Clock) endLocked(m *Match, winner Winner) {
	m.Status = MatchEnded
	m.Phase = PhaseEnded
	m.Winner = winner
	m.EndedAt = time.Now().Unix()
	m.phaseDeadline = time.Time{}
	if m.timer != nil {
		m.timer.Stop()
	}
}

// ForceEnd 立即终结一场进行中的对局，不记录胜方。用于停服与
// 无法继续的异常局面。
func (c *Clock) ForceEnd(m *Match) {
	m.mu.Lock()
	if m.Status == MatchEnded {
		m.mu.Unlock()
		return
	}
	m.phaseClosed = true
	c.endLocked(m, WinnerNone)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	c.finish(m, snap)
}

// finish 执行终局后的收尾：回合进入 ended 的广播、快照落盘、
// 经济结算与注册表退役。广播失败只记录日志，不影响对局状态。
func (c *Clock) finish(m *Match, snap Snapshot) {
	metrics.ObserveMatchEnded(string(snap.Winner))

	c.publish(fanout.Match(snap.ID), NewMatchEnded(snap))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c.store != nil {
		if err := c.store.SaveSnapshot(ctx, snap); err != nil {
			c.logger.Error("保存终局快照失败", slog.Any("error", err), slog.String("match_id", snap.ID))
		}
	}

	c.registry.Retire(m)

	if c.settler != nil {
		go c.settleWithRetry(snap)
	}
}

// settleWithRetry 以退避方式重试结算。结算器自身持有幂等标记，
// 对局在结算完成前处于 "ended, unsettled" 的合法过渡状态。
func (c *Clock) settleWithRetry(snap Snapshot) {
	backoff := c.settleBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.settler.Settle(ctx, snap)
		cancel()
		if err == nil {
			return
		}
		c.logger.Error("经济结算失败",
			slog.Any("error", err),
			slog.String("match_id", snap.ID),
			slog.Int("attempt", attempt),
		)
		metrics.ObserveSettlementRetry()
		if attempt >= c.settleRetries {
			c.logger.Error("经济结算重试耗尽，等待人工补偿", slog.String("match_id", snap.ID))
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (c *Clock) publish(audience fanout.Audience, event fanout.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.Publish(ctx, audience, event); err != nil {
		c.logger.Warn("事件广播失败",
			slog.Any("error", err),
			slog.String("event", event.EventName()),
			slog.String("match_id", audience.MatchID),
		)
	}
}
