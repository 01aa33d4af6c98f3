package economy

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	xerrors "Traitors-Arena/internal/errors"
	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/observability/alerting"
	"Traitors-Arena/internal/participant"
	"Traitors-Arena/internal/rules"
	"Traitors-Arena/pkg/logger"
)

// MatchSource 提供按 ID 查询活跃对局的能力,由对局注册表实现。
type MatchSource interface {
	Get(id string) (*game.Match, error)
}

// Service 负责赛后结算、观战押注与积分提取。
// 它实现 game.Settler,由对局时钟在终局后异步调用。
type Service struct {
	store        Store
	participants participant.Store
	matches      MatchSource
	rules        rules.Rules
	alerts       alerting.Dispatcher
	logger       *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

var _ game.Settler = (*Service)(nil)

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithAlerts 指定结算失败时的告警通道。
func WithAlerts(dispatcher alerting.Dispatcher) ServiceOption {
	return func(s *Service) { s.alerts = dispatcher }
}

// NewService 构造经济服务。
func NewService(store Store, participants participant.Store, matches MatchSource, r rules.Rules, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		participants: participants,
		matches:      matches,
		rules:        r,
		logger:       logger.Named("economy"),
		attempts:     make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Settle 对一场终局快照执行经济结算。整个流程可以安全重跑:
// 对局级标记挡住整体重复,条目级标记挡住参赛者级重复,
// 成就与判分各自幂等。
func (s *Service) Settle(ctx context.Context, snap game.Snapshot) error {
	if snap.Status != game.MatchEnded {
		return xerrors.New(xerrors.CodeInvalidArgument, "只能结算已结束的对局")
	}

	done, err := s.store.Settled(ctx, snap.ID)
	if err != nil {
		return s.fail(ctx, snap, xerrors.Wrap(xerrors.CodeSettlementFailure, err, "读取结算标记失败"))
	}
	if done {
		return nil
	}

	entries := s.computeEntries(snap)
	for _, entry := range entries {
		recorded, err := s.store.EntryRecorded(ctx, entry.MatchID, entry.ParticipantID)
		if err != nil {
			return s.fail(ctx, snap, xerrors.Wrap(xerrors.CodeSettlementFailure, err, "读取结算条目失败"))
		}
		if recorded {
			continue
		}
		if err := s.applyEntry(ctx, entry); err != nil {
			return s.fail(ctx, snap, err)
		}
	}

	if err := s.scorePredictions(ctx, snap); err != nil {
		return s.fail(ctx, snap, err)
	}
	if err := s.grantAchievements(ctx, snap); err != nil {
		return s.fail(ctx, snap, err)
	}

	if err := s.store.MarkSettled(ctx, snap.ID, string(snap.Winner)); err != nil {
		return s.fail(ctx, snap, xerrors.Wrap(xerrors.CodeSettlementFailure, err, "写入结算标记失败"))
	}

	s.mu.Lock()
	delete(s.attempts, snap.ID)
	s.mu.Unlock()

	s.logger.Info("对局结算完成",
		slog.String("match_id", snap.ID),
		slog.String("winner", string(snap.Winner)),
		slog.Int("entries", len(entries)),
	)
	return nil
}

// computeEntries 根据终局快照计算每个座位的积分与评分变化。
// 奖池在存活的胜方之间平分,无人存活则整池作废;
// 评分按对阵全场平均分的 Elo 公式调整,无胜方时按平局计。
func (s *Service) computeEntries(snap game.Snapshot) []SettlementEntry {
	pool := s.rules.Economy.PointPool
	k := s.rules.Economy.EloK

	ratings := make(map[string]float64, len(snap.Slots))
	var total float64
	for _, slot := range snap.Slots {
		r := s.ratingOf(slot.ParticipantID)
		ratings[slot.ParticipantID] = r
		total += r
	}

	var survivingWinners int
	for _, slot := range snap.Slots {
		if s.won(snap.Winner, slot.Role) && slot.Status == game.SlotAlive {
			survivingWinners++
		}
	}
	var share int64
	if survivingWinners > 0 {
		share = pool / int64(survivingWinners)
	}

	now := time.Now().Unix()
	entries := make([]SettlementEntry, 0, len(snap.Slots))
	for _, slot := range snap.Slots {
		won := s.won(snap.Winner, slot.Role)
		survived := slot.Status == game.SlotAlive

		rating := ratings[slot.ParticipantID]
		field := rating
		if len(snap.Slots) > 1 {
			field = (total - rating) / float64(len(snap.Slots)-1)
		}
		expected := 1 / (1 + math.Pow(10, (field-rating)/400))
		score := 0.0
		switch {
		case snap.Winner == game.WinnerNone:
			score = 0.5
		case won:
			score = 1
		}
		delta := int(math.Round(k * (score - expected)))

		var points int64
		if won && survived {
			points = share
		}
		entries = append(entries, SettlementEntry{
			MatchID:       snap.ID,
			ParticipantID: slot.ParticipantID,
			Role:          slot.Role,
			Won:           won,
			Survived:      survived,
			Points:        points,
			RatingDelta:   delta,
			RatingAfter:   int(rating) + delta,
			CreatedAt:     now,
		})
	}
	return entries
}

func (s *Service) won(winner game.Winner, role game.Role) bool {
	switch winner {
	case game.WinnerTraitors:
		return role == game.RoleTraitor
	case game.WinnerInnocents:
		return role == game.RoleInnocent
	default:
		return false
	}
}

func (s *Service) ratingOf(participantID string) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return s.rules.Economy.BaseRating
	}
	return float64(p.Rating)
}

// applyEntry 把单个结算条目写入参赛者档案。档案更新在前、
// 条目标记在后:重试窗口内最坏情况是条目再算一次,
// 而条目一旦落账就永远不会再改档案。
func (s *Service) applyEntry(ctx context.Context, entry SettlementEntry) error {
	p, err := s.participants.Get(ctx, entry.ParticipantID)
	if err != nil {
		// 未注册的座位按基准分建档再结算。
		p = &participant.Participant{
			ID:     entry.ParticipantID,
			Name:   entry.ParticipantID,
			Kind:   participant.KindAgent,
			Rating: int(s.rules.Economy.BaseRating),
		}
		if createErr := s.participants.Create(ctx, p); createErr != nil {
			return xerrors.Wrap(xerrors.CodeSettlementFailure, createErr, "建档失败")
		}
	}

	p.GamesPlayed++
	p.Rating = entry.RatingAfter
	p.UnclaimedPoints += int(entry.Points)
	if entry.Won {
		p.GamesWon++
		p.CurrentStreak++
		if p.CurrentStreak > p.BestStreak {
			p.BestStreak = p.CurrentStreak
		}
		if entry.Role == game.RoleTraitor {
			p.TraitorWins++
		} else {
			p.InnocentWins++
		}
	} else {
		// 无胜者收场同样视为未获胜,连胜一律清零。
		p.CurrentStreak = 0
	}

	if err := s.participants.SaveStats(ctx, p); err != nil {
		return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "更新参赛者统计失败")
	}
	if err := s.store.RecordEntry(ctx, entry); err != nil {
		return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "写入结算条目失败")
	}
	return nil
}

// scorePredictions 判分全部押注。只有押中完整内鬼名单的押注
// 才得奖。判分标记先行,宁可少发不可重发。
func (s *Service) scorePredictions(ctx context.Context, snap game.Snapshot) error {
	predictions, err := s.store.PredictionsByMatch(ctx, snap.ID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "读取押注失败")
	}
	if len(predictions) == 0 {
		return nil
	}

	traitors := snap.TraitorSet()
	for _, prediction := range predictions {
		if prediction.Scored {
			continue
		}
		correct := exactSet(prediction.Suspects, traitors)
		var award int64
		if correct {
			award = s.rules.Economy.PredictionAward
		}
		if err := s.store.MarkPredictionScored(ctx, prediction.ID, correct, award); err != nil {
			return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "写入判分结果失败")
		}
		if award == 0 {
			continue
		}
		p, err := s.participants.Get(ctx, prediction.ParticipantID)
		if err != nil {
			s.logger.Warn("押注得主档案缺失,奖励作废",
				slog.String("participant_id", prediction.ParticipantID),
				slog.String("match_id", snap.ID),
			)
			continue
		}
		p.UnclaimedPoints += int(award)
		if err := s.participants.SaveStats(ctx, p); err != nil {
			return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "发放押注奖励失败")
		}
	}
	return nil
}

// exactSet 报告押注名单与内鬼集合是否完全一致。
func exactSet(suspects []string, traitors map[string]struct{}) bool {
	if len(suspects) != len(traitors) {
		return false
	}
	seen := make(map[string]struct{}, len(suspects))
	for _, id := range suspects {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
		if _, ok := traitors[id]; !ok {
			return false
		}
	}
	return true
}

// grantAchievements 按规则阈值解锁成就。重复解锁由存储层吞掉。
func (s *Service) grantAchievements(ctx context.Context, snap game.Snapshot) error {
	now := time.Now().Unix()
	for _, slot := range snap.Slots {
		p, err := s.participants.Get(ctx, slot.ParticipantID)
		if err != nil {
			continue
		}
		for _, rule := range s.rules.Achievements {
			if metricValue(p, rule.Metric) < rule.Threshold {
				continue
			}
			owned, err := s.store.HasAchievement(ctx, p.ID, rule.ID)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "读取成就失败")
			}
			if owned {
				continue
			}
			grant := AchievementGrant{
				ParticipantID: p.ID,
				AchievementID: rule.ID,
				Name:          rule.Name,
				GrantedAt:     now,
			}
			if err := s.store.GrantAchievement(ctx, grant); err != nil {
				return xerrors.Wrap(xerrors.CodeSettlementFailure, err, "解锁成就失败")
			}
			s.logger.Info("成就解锁",
				slog.String("participant_id", p.ID),
				slog.String("achievement", rule.ID),
			)
		}
	}
	return nil
}

func metricValue(p *participant.Participant, metric string) float64 {
	switch metric {
	case "games_played":
		return float64(p.GamesPlayed)
	case "games_won":
		return float64(p.GamesWon)
	case "traitor_wins":
		return float64(p.TraitorWins)
	case "innocent_wins":
		return float64(p.InnocentWins)
	case "best_streak":
		return float64(p.BestStreak)
	case "rating":
		return float64(p.Rating)
	default:
		return -1
	}
}

// fail 记录失败次数并发出告警,原样返回错误交由时钟重试。
func (s *Service) fail(ctx context.Context, snap game.Snapshot, err error) error {
	s.mu.Lock()
	s.attempts[snap.ID]++
	attempt := s.attempts[snap.ID]
	s.mu.Unlock()

	if s.alerts != nil {
		alertErr := s.alerts.Notify(ctx, alerting.Event{
			Code:       xerrors.CodeOf(err),
			Message:    err.Error(),
			Severity:   xerrors.SeverityOf(err),
			MatchID:    snap.ID,
			Attempts:   attempt,
			OccurredAt: time.Now(),
		})
		if alertErr != nil {
			s.logger.Warn("结算告警发送失败", slog.Any("error", alertErr), slog.String("match_id", snap.ID))
		}
	}
	return err
}
