package economy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"Traitors-Arena/internal/game"
)

// SubmitPrediction 记录观战者对内鬼名单的押注。只允许在对局
// 结束前提交,名单必须恰好是规则规定的内鬼数量,且全部指向
// 在场座位。同一人重复押注以最后一次为准。
func (s *Service) SubmitPrediction(ctx context.Context, matchID, predictorID string, suspects []string) (*Prediction, error) {
	m, err := s.matches.Get(matchID)
	if err != nil {
		return nil, err
	}
	snap := m.Snapshot()
	if snap.Status == game.MatchEnded {
		return nil, ErrPredictionClosed
	}

	roster := make(map[string]struct{}, len(snap.Slots))
	for _, slot := range snap.Slots {
		if slot.ParticipantID == predictorID {
			// 座上选手知道太多,不许下注自己的对局。
			return nil, ErrInsiderForbidden
		}
		roster[slot.ParticipantID] = struct{}{}
	}

	if len(suspects) != s.rules.Match.TraitorCount {
		return nil, ErrInvalidSuspects
	}
	seen := make(map[string]struct{}, len(suspects))
	for _, id := range suspects {
		if _, ok := roster[id]; !ok {
			return nil, ErrInvalidSuspects
		}
		if _, dup := seen[id]; dup {
			return nil, ErrInvalidSuspects
		}
		seen[id] = struct{}{}
	}

	prediction := &Prediction{
		ID:            uuid.NewString(),
		MatchID:       matchID,
		ParticipantID: predictorID,
		Suspects:      append([]string(nil), suspects...),
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.store.SavePrediction(ctx, prediction); err != nil {
		return nil, err
	}
	return prediction, nil
}
