package participant

import (
	"context"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

// 参赛者相关错误。
var (
	ErrNotFound      = xerrors.New(CodeNotFound, "participant not found")
	ErrAlreadyExists = xerrors.New(CodeAlreadyExists, "participant already registered")
)

const (
	CodeNotFound      xerrors.Code = "PARTICIPANT_NOT_FOUND"
	CodeAlreadyExists xerrors.Code = "PARTICIPANT_ALREADY_EXISTS"
)

func init() {
	xerrors.Register(CodeNotFound, xerrors.Attributes{Message: "participant not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeAlreadyExists, xerrors.Attributes{Message: "participant already registered", Severity: xerrors.SeverityInfo})
}

// Kind 区分参赛者类型：自主智能体或人类操作员。
type Kind string

const (
	KindAgent Kind = "agent"
	KindHuman Kind = "human"
)

// Participant 保存参赛者档案与生涯统计。
// 统计字段只由结算流程写入，注册后其余字段保持不变。
type Participant struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Kind            Kind      `json:"kind"`
	Rating          int       `json:"rating"`
	GamesPlayed     int       `json:"games_played"`
	GamesWon        int       `json:"games_won"`
	TraitorWins     int       `json:"traitor_wins"`
	InnocentWins    int       `json:"innocent_wins"`
	CurrentStreak   int       `json:"current_streak"`
	BestStreak      int       `json:"best_streak"`
	UnclaimedPoints int       `json:"unclaimed_points"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WinRate 返回胜率，未参赛时为 0。
func (p *Participant) WinRate() float64 {
	if p.GamesPlayed == 0 {
		return 0
	}
	return float64(p.GamesWon) / float64(p.GamesPlayed)
}

// Store 定义参赛者档案的持久化接口。
type Store interface {
	// Create 注册新参赛者，ID 冲突时返回 ErrAlreadyExists。
	Create(ctx context.Context, p *Participant) error
	// Get 按 ID 查询档案，不存在时返回 ErrNotFound。
	Get(ctx context.Context, id string) (*Participant, error)
	// SaveStats 覆盖写入结算后的统计字段。
	SaveStats(ctx context.Context, p *Participant) error
	// List 按积分降序返回前 limit 名参赛者。
	List(ctx context.Context, limit int) ([]*Participant, error)
	// Close 释放底层资源。
	Close() error
}
