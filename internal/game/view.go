package game

// Viewer 描述一次状态查询的观察者上下文。
type Viewer struct {
	// ParticipantID 为空表示纯观战者。
	ParticipantID string
}

// SlotView 是座位的净化视图。Role 在无权查看时整个字段缺失，
// 绝不填充假值。
type SlotView struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name"`
	Status        SlotStatus `json:"status"`
	DeathRound    int        `json:"death_round,omitempty"`
	Role          Role       `json:"role,omitempty"`
}

// MatchView 是对局状态的净化视图。
type MatchView struct {
	ID             string      `json:"id"`
	Status         MatchStatus `json:"status"`
	Round          int         `json:"round"`
	Phase          Phase       `json:"phase"`
	PhaseDeadline  int64       `json:"phase_deadline,omitempty"`
	Winner         Winner      `json:"winner,omitempty"`
	Slots          []SlotView  `json:"slots"`
	YourRole       Role        `json:"your_role,omitempty"`
	SpectatorCount int64       `json:"spectator_count"`
}

// ProjectView 将完整对局快照投影为观察者可见的子集。纯函数。
//
// 规则：座位的阵营对本人始终可见；内鬼之间互相可见；座位一旦被
// 放逐、或对局已终结，其阵营对所有人可见；其余情况下阵营字段缺失。
// 观战者负载在任何字段下都不包含存活内鬼名单。
func ProjectView(s Snapshot, viewer Viewer) MatchView {
	view := MatchView{
		ID:            s.ID,
		Status:        s.Status,
		Round:         s.Round,
		Phase:         s.Phase,
		PhaseDeadline: s.PhaseDeadline,
		Slots:         make([]SlotView, len(s.Slots)),
	}
	if s.Status == MatchEnded {
		view.Winner = s.Winner
	}

	viewerIsTraitor := false
	for _, slot := range s.Slots {
		if slot.ParticipantID != "" && slot.ParticipantID == viewer.ParticipantID {
			view.YourRole = slot.Role
			viewerIsTraitor = slot.Role == RoleTraitor
			break
		}
	}

	for i, slot := range s.Slots {
		sv := SlotView{
			ParticipantID: slot.ParticipantID,
			Name:          slot.Name,
			Status:        slot.Status,
			DeathRound:    slot.DeathRound,
		}
		if roleVisible(s, slot, viewer, viewerIsTraitor) {
			sv.Role = slot.Role
		}
		view.Slots[i] = sv
	}
	return view
}

func roleVisible(s Snapshot, slot SlotSnapshot, viewer Viewer, viewerIsTraitor bool) bool {
	if s.Status == MatchEnded {
		return true
	}
	if slot.Status == SlotBanished {
		return true
	}
	if slot.ParticipantID == viewer.ParticipantID {
		return true
	}
	if viewerIsTraitor && slot.Role == RoleTraitor {
		return true
	}
	return false
}
