package economy

import "context"

// Store 定义经济数据的持久化接口。结算标记、结算条目与成就
// 共同构成幂等重试的基础:任何一步崩溃后重跑都不会重复发奖。
type Store interface {
	// Settled 报告对局是否已完成结算。
	Settled(ctx context.Context, matchID string) (bool, error)
	// MarkSettled 写入对局级结算标记,必须在所有条目落账后调用。
	MarkSettled(ctx context.Context, matchID string, winner string) error

	// EntryRecorded 报告某参赛者在该对局的结算条目是否已落账。
	EntryRecorded(ctx context.Context, matchID, participantID string) (bool, error)
	// RecordEntry 写入单个参赛者的结算条目。
	RecordEntry(ctx context.Context, entry SettlementEntry) error

	// SavePrediction 按 (match_id, participant_id) 保存或覆盖押注。
	SavePrediction(ctx context.Context, p *Prediction) error
	// PredictionsByMatch 返回对局的全部押注。
	PredictionsByMatch(ctx context.Context, matchID string) ([]*Prediction, error)
	// MarkPredictionScored 写入判分结果。
	MarkPredictionScored(ctx context.Context, id string, correct bool, award int64) error

	// HasAchievement 报告成就是否已解锁。
	HasAchievement(ctx context.Context, participantID, achievementID string) (bool, error)
	// GrantAchievement 解锁成就,重复解锁是空操作。
	GrantAchievement(ctx context.Context, grant AchievementGrant) error
	// AchievementsOf 返回参赛者已解锁的全部成就。
	AchievementsOf(ctx context.Context, participantID string) ([]AchievementGrant, error)

	// RecordClaim 记录一次积分提取。
	RecordClaim(ctx context.Context, claim Claim) error
	// ClaimsOf 返回参赛者的提取记录。
	ClaimsOf(ctx context.Context, participantID string) ([]Claim, error)

	// Close 释放底层资源。
	Close() error
}
