package game

import (
	"sync"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

// Role 表示座位在对局中的阵营。
type Role string

const (
	RoleInnocent Role = "innocent"
	RoleTraitor  Role = "traitor"
)

// SlotStatus 表示座位的存活状态。座位只会从 alive 一次性进入终态。
type SlotStatus string

const (
	SlotAlive    SlotStatus = "alive"
	SlotMurdered SlotStatus = "murdered"
	SlotBanished SlotStatus = "banished"
)

// Phase 表示对局当前所处的阶段。
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseMurder     Phase = "murder"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseReveal     Phase = "reveal"
	PhaseEnded      Phase = "ended"
)

// MatchStatus 表示对局的生命周期状态。
type MatchStatus string

const (
	MatchWaiting  MatchStatus = "waiting"
	MatchStarting MatchStatus = "starting"
	MatchActive   MatchStatus = "active"
	MatchEnded    MatchStatus = "ended"
)

// Winner 表示对局的胜方。
type Winner string

const (
	WinnerNone      Winner = ""
	WinnerInnocents Winner = "innocents"
	WinnerTraitors  Winner = "traitors"
)

// 对局相关错误。
var (
	ErrMatchNotFound  = xerrors.New(CodeMatchNotFound, "match not found")
	ErrNotInMatch     = xerrors.New(CodeNotInMatch, "participant is not seated in this match")
	ErrAlreadyQueued  = xerrors.New(CodeAlreadyQueued, "participant already in queue")
	ErrAlreadyInMatch = xerrors.New(CodeAlreadyInMatch, "participant already in a live match")
	ErrWrongPhase     = xerrors.New(CodeWrongPhase, "action not allowed in current phase")
	ErrInvalidTarget  = xerrors.New(CodeInvalidTarget, "invalid action target")
	ErrSlotDead       = xerrors.New(CodeSlotDead, "slot is no longer alive")
	ErrMatchEnded     = xerrors.New(CodeMatchEnded, "match already ended")
)

const (
	CodeMatchNotFound  xerrors.Code = "MATCH_NOT_FOUND"
	CodeNotInMatch     xerrors.Code = "MATCH_NOT_SEATED"
	CodeAlreadyQueued  xerrors.Code = "QUEUE_ALREADY_QUEUED"
	CodeAlreadyInMatch xerrors.Code = "QUEUE_ALREADY_IN_MATCH"
	CodeWrongPhase     xerrors.Code = "MATCH_WRONG_PHASE"
	CodeInvalidTarget  xerrors.Code = "MATCH_INVALID_TARGET"
	CodeSlotDead       xerrors.Code = "MATCH_SLOT_DEAD"
	CodeMatchEnded     xerrors.Code = "MATCH_ENDED"
)

func init() {
	for code, attr := range map[xerrors.Code]xerrors.Attributes{
		CodeMatchNotFound:  {Message: "match not found", Severity: xerrors.SeverityInfo},
		CodeNotInMatch:     {Message: "participant is not seated in this match", Severity: xerrors.SeverityInfo},
		CodeAlreadyQueued:  {Message: "participant already in queue", Severity: xerrors.SeverityInfo},
		CodeAlreadyInMatch: {Message: "participant already in a live match", Severity: xerrors.SeverityInfo},
		CodeWrongPhase:     {Message: "action not allowed in current phase", Severity: xerrors.SeverityInfo},
		CodeInvalidTarget:  {Message: "invalid action target", Severity: xerrors.SeverityInfo},
		CodeSlotDead:       {Message: "slot is no longer alive", Severity: xerrors.SeverityInfo},
		CodeMatchEnded:     {Message: "match already ended", Severity: xerrors.SeverityInfo},
	} {
		xerrors.Register(code, attr)
	}
}

// Slot 表示参赛者在某一场对局中的座位。阵营在建局时分配后不再变化。
type Slot struct {
	ParticipantID string
	Name          string
	Role          Role
	Status        SlotStatus
	DeathRound    int
}

// Alive 报告座位是否仍然存活。
func (s *Slot) Alive() bool { return s.Status == SlotAlive }

// Match 表示一场对局。所有字段由对局自身的互斥锁保护，
// 阶段推进只能由 Clock 执行。
type Match struct {
	mu sync.Mutex

	ID           string
	Status       MatchStatus
	Round        int
	Phase        Phase
	Slots        []*Slot
	TraitorCount int
	Winner       Winner
	CreatedAt    int64
	StartedAt    int64
	EndedAt      int64

	// phaseSeq 对每个阶段实例单调递增，phaseClosed 是该实例的
	// 唯一关闭标志：定时器到期与提前完成同时触发时只有一方生效。
	phaseSeq      int
	phaseClosed   bool
	phaseDeadline time.Time
	timer         *time.Timer

	actions *actionSet
}

// SlotSnapshot 是座位的不可变快照。
type SlotSnapshot struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Status        SlotStatus `json:"status"`
	DeathRound    int        `json:"death_round,omitempty"`
}

// Snapshot 是对局状态的不可变快照，用于投影、持久化与结算。
type Snapshot struct {
	ID            string         `json:"id"`
	Status        MatchStatus    `json:"status"`
	Round         int            `json:"round"`
	Phase         Phase          `json:"phase"`
	PhaseDeadline int64          `json:"phase_deadline,omitempty"`
	Winner        Winner         `json:"winner,omitempty"`
	Slots         []SlotSnapshot `json:"slots"`
	CreatedAt     int64          `json:"created_at"`
	StartedAt     int64          `json:"started_at,omitempty"`
	EndedAt       int64          `json:"ended_at,omitempty"`
}

// Snapshot 在锁内复制当前对局状态。
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        m.ID,
		Status:    m.Status,
		Round:     m.Round,
		Phase:     m.Phase,
		Winner:    m.Winner,
		Slots:     make([]SlotSnapshot, len(m.Slots)),
		CreatedAt: m.CreatedAt,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
	if !m.phaseDeadline.IsZero() {
		snap.PhaseDeadline = m.phaseDeadline.Unix()
	}
	for i, slot := range m.Slots {
		snap.Slots[i] = SlotSnapshot{
			ParticipantID: slot.ParticipantID,
			Name:          slot.Name,
			Role:          slot.Role,
			Status:        slot.Status,
			DeathRound:    slot.DeathRound,
		}
	}
	return snap
}

// slotIndexLocked 返回参赛者的座位下标，未入座时返回 -1。
func (m *Match) slotIndexLocked(participantID string) int {
	for i, slot := range m.Slots {
		if slot.ParticipantID == participantID {
			return i
		}
	}
	return -1
}

func (m *Match) livingLocked(role Role) int {
	count := 0
	for _, slot := range m.Slots {
		if slot.Role == role && slot.Alive() {
			count++
		}
	}
	return count
}

// LivingTraitors 返回存活的内鬼数量。
func (s Snapshot) LivingTraitors() int { return s.living(RoleTraitor) }

// LivingInnocents 返回存活的无辜者数量。
func (s Snapshot) LivingInnocents() int { return s.living(RoleInnocent) }

func (s Snapshot) living(role Role) int {
	count := 0
	for _, slot := range s.Slots {
		if slot.Role == role && slot.Status == SlotAlive {
			count++
		}
	}
	return count
}

// TraitorSet 返回对局的内鬼参赛者集合，仅供结算与预测评分使用。
func (s Snapshot) TraitorSet() map[string]struct{} {
	set := make(map[string]struct{}, 2)
	for _, slot := range s.Slots {
		if slot.Role == RoleTraitor {
			set[slot.ParticipantID] = struct{}{}
		}
	}
	return set
}
