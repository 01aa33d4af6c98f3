package economy

import (
	xerrors "Traitors-Arena/internal/errors"

	"Traitors-Arena/internal/game"
)

// 经济模块相关错误。
var (
	ErrPredictionClosed = xerrors.New(CodePredictionClosed, "predictions are closed for this match")
	ErrInsiderForbidden = xerrors.New(CodeInsiderForbidden, "seated participants may not predict their own match")
	ErrInvalidSuspects  = xerrors.New(CodeInvalidSuspects, "suspect list does not match the roster")
	ErrInvalidWallet    = xerrors.New(CodeInvalidWallet, "wallet address is not a valid hex address")
	ErrNothingToClaim   = xerrors.New(CodeNothingToClaim, "no unclaimed points")
)

const (
	CodePredictionClosed xerrors.Code = "ECONOMY_PREDICTION_CLOSED"
	CodeInsiderForbidden xerrors.Code = "ECONOMY_INSIDER_FORBIDDEN"
	CodeInvalidSuspects  xerrors.Code = "ECONOMY_INVALID_SUSPECTS"
	CodeInvalidWallet    xerrors.Code = "ECONOMY_INVALID_WALLET"
	CodeNothingToClaim   xerrors.Code = "ECONOMY_NOTHING_TO_CLAIM"
)

func init() {
	for code, attr := range map[xerrors.Code]xerrors.Attributes{
		CodePredictionClosed: {Message: "predictions are closed for this match", Severity: xerrors.SeverityInfo},
		CodeInsiderForbidden: {Message: "seated participants may not predict their own match", Severity: xerrors.SeverityInfo},
		CodeInvalidSuspects:  {Message: "suspect list does not match the roster", Severity: xerrors.SeverityInfo},
		CodeInvalidWallet:    {Message: "wallet address is not a valid hex address", Severity: xerrors.SeverityInfo},
		CodeNothingToClaim:   {Message: "no unclaimed points", Severity: xerrors.SeverityInfo},
	} {
		xerrors.Register(code, attr)
	}
}

// SettlementEntry 记录单个参赛者在一场对局中的结算结果。
// (match_id, participant_id) 唯一,重试时已落账的条目直接跳过,
// 这是结算幂等性的基本单位。
type SettlementEntry struct {
	MatchID       string    `json:"match_id"`
	ParticipantID string    `json:"participant_id"`
	Role          game.Role `json:"role"`
	Won           bool      `json:"won"`
	Survived      bool      `json:"survived"`
	Points        int64     `json:"points"`
	RatingDelta   int       `json:"rating_delta"`
	RatingAfter   int       `json:"rating_after"`
	CreatedAt     int64     `json:"created_at"`
}

// Prediction 记录观战者对内鬼名单的押注。每人每局一份,
// 对局结束前可以覆盖,结束后由结算流程统一判分。
type Prediction struct {
	ID            string   `json:"id"`
	MatchID       string   `json:"match_id"`
	ParticipantID string   `json:"participant_id"`
	Suspects      []string `json:"suspects"`
	Scored        bool     `json:"scored"`
	Correct       bool     `json:"correct"`
	Award         int64    `json:"award"`
	CreatedAt     int64    `json:"created_at"`
}

// AchievementGrant 记录一次成就解锁。同一成就只会解锁一次。
type AchievementGrant struct {
	ParticipantID string `json:"participant_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	GrantedAt     int64  `json:"granted_at"`
}

// Claim 记录一次积分提取。余额清零后留档,链上结算由外部系统负责。
type Claim struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Wallet        string `json:"wallet"`
	Points        int64  `json:"points"`
	CreatedAt     int64  `json:"created_at"`
}
