package economy

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Claim 把参赛者的未提取积分一次性划转到给定钱包地址。
// 余额清零并留档,链上转账由场外结算系统按提取记录执行。
func (s *Service) Claim(ctx context.Context, participantID, wallet string) (*Claim, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	p, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UnclaimedPoints <= 0 {
		return nil, ErrNothingToClaim
	}

	claim := Claim{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Wallet:        common.HexToAddress(wallet).Hex(),
		Points:        int64(p.UnclaimedPoints),
		CreatedAt:     time.Now().Unix(),
	}
	// 先清零再落账:两步之间崩溃最坏是这笔积分作废,
	// 反过来则同一笔余额可以被重复提取。宁可少发不可重发。
	p.UnclaimedPoints = 0
	if err := s.participants.SaveStats(ctx, p); err != nil {
		return nil, err
	}
	if err := s.store.RecordClaim(ctx, claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// Claims 返回参赛者的历史提取记录。
func (s *Service) Claims(ctx context.Context, participantID string) ([]Claim, error) {
	return s.store.ClaimsOf(ctx, participantID)
}

// Achievements 返回参赛者已解锁的成就。
func (s *Service) Achievements(ctx context.Context, participantID string) ([]AchievementGrant, error) {
	return s.store.AchievementsOf(ctx, participantID)
}
