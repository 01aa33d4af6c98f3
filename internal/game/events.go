package game

import "time"

// 事件标签的封闭集合。每个事件变体携带固定字段，构造函数负责填充
// 公共字段，负载中不含任何未经净化的阵营信息。
const (
	EventMatchFound            = "match-found"
	EventPhaseChanged          = "phase-changed"
	EventParticipantDied       = "participant-died"
	EventParticipantBanished   = "participant-banished"
	EventMatchEnded            = "match-ended"
	EventSpectatorCountChanged = "spectator-count-changed"
	EventChatPosted            = "chat-posted"
)

// MatchFoundEvent 在建局时投递给单个参赛者的私有通道。
// Role 只描述接收者本人的阵营，Teammates 仅对内鬼填充。
type MatchFoundEvent struct {
	MatchID   string   `json:"match_id"`
	Role      Role     `json:"role"`
	Roster    []string `json:"roster"`
	Teammates []string `json:"teammates,omitempty"`
	At        int64    `json:"at"`
}

// EventName 实现 fanout.Event。
func (MatchFoundEvent) EventName() string { return EventMatchFound }

// NewMatchFound 构造建局事件。
func NewMatchFound(matchID string, role Role, roster, teammates []string) MatchFoundEvent {
	return MatchFoundEvent{
		MatchID:   matchID,
		Role:      role,
		Roster:    roster,
		Teammates: teammates,
		At:        time.Now().Unix(),
	}
}

// PhaseChangedEvent 在每次阶段切换时投递给对局房间。
type PhaseChangedEvent struct {
	MatchID  string `json:"match_id"`
	Round    int    `json:"round"`
	Phase    Phase  `json:"phase"`
	Deadline int64  `json:"deadline,omitempty"`
	At       int64  `json:"at"`
}

// EventName 实现 fanout.Event。
func (PhaseChangedEvent) EventName() string { return EventPhaseChanged }

// NewPhaseChanged 构造阶段切换事件。
func NewPhaseChanged(matchID string, round int, phase Phase, deadline time.Time) PhaseChangedEvent {
	ev := PhaseChangedEvent{MatchID: matchID, Round: round, Phase: phase, At: time.Now().Unix()}
	if !deadline.IsZero() {
		ev.Deadline = deadline.Unix()
	}
	return ev
}

// ParticipantDiedEvent 在刺杀裁决出受害者后投递给对局房间。
// 不携带阵营：遇害者的身份到终局才揭示。
type ParticipantDiedEvent struct {
	MatchID       string `json:"match_id"`
	Round         int    `json:"round"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	At            int64  `json:"at"`
}

// EventName 实现 fanout.Event。
func (ParticipantDiedEvent) EventName() string { return EventParticipantDied }

// NewParticipantDied 构造遇害事件。
func NewParticipantDied(matchID string, round int, slot SlotSnapshot) ParticipantDiedEvent {
	return ParticipantDiedEvent{
		MatchID:       matchID,
		Round:         round,
		ParticipantID: slot.ParticipantID,
		Name:          slot.Name,
		At:            time.Now().Unix(),
	}
}

// ParticipantBanishedEvent 在投票裁决出放逐对象后投递给对局房间。
// 被放逐座位的阵营随即公开。
type ParticipantBanishedEvent struct {
	MatchID       string `json:"match_id"`
	Round         int    `json:"round"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	At            int64  `json:"at"`
}

// EventName 实现 fanout.Event。
func (ParticipantBanishedEvent) EventName() string { return EventParticipantBanished }

// NewParticipantBanished 构造放逐事件。
func NewParticipantBanished(matchID string, round int, slot SlotSnapshot) ParticipantBanishedEvent {
	return ParticipantBanishedEvent{
		MatchID:       matchID,
		Round:         round,
		ParticipantID: slot.ParticipantID,
		Name:          slot.Name,
		Role:          slot.Role,
		At:            time.Now().Unix(),
	}
}

// MatchEndedEvent 在终局时投递给对局房间，公开完整阵营名单。
type MatchEndedEvent struct {
	MatchID  string   `json:"match_id"`
	Winner   Winner   `json:"winner"`
	Rounds   int      `json:"rounds"`
	Traitors []string `json:"traitors"`
	At       int64    `json:"at"`
}

// EventName 实现 fanout.Event。
func (MatchEndedEvent) EventName() string { return EventMatchEnded }

// NewMatchEnded 构造终局事件。
func NewMatchEnded(s Snapshot) MatchEndedEvent {
	traitors := make([]string, 0, 2)
	for _, slot := range s.Slots {
		if slot.Role == RoleTraitor {
			traitors = append(traitors, slot.ParticipantID)
		}
	}
	return MatchEndedEvent{
		MatchID:  s.ID,
		Winner:   s.Winner,
		Rounds:   s.Round,
		Traitors: traitors,
		At:       time.Now().Unix(),
	}
}

// SpectatorCountEvent 在观战人数变化时投递给对局房间。计数为近似值。
type SpectatorCountEvent struct {
	MatchID string `json:"match_id"`
	Count   int64  `json:"count"`
	At      int64  `json:"at"`
}

// EventName 实现 fanout.Event。
func (SpectatorCountEvent) EventName() string { return EventSpectatorCountChanged }

// NewSpectatorCount 构造观战人数事件。
func NewSpectatorCount(matchID string, count int64) SpectatorCountEvent {
	return SpectatorCountEvent{MatchID: matchID, Count: count, At: time.Now().Unix()}
}

// ChatPostedEvent 在聊天消息被记录后投递给对应频道。
type ChatPostedEvent struct {
	MatchID       string `json:"match_id"`
	Round         int    `json:"round"`
	Channel       string `json:"channel"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Text          string `json:"text"`
	At            int64  `json:"at"`
}

// EventName 实现 fanout.Event。
func (ChatPostedEvent) EventName() string { return EventChatPosted }

// NewChatPosted 构造聊天事件。
func NewChatPosted(matchID string, round int, channel string, slot SlotSnapshot, text string) ChatPostedEvent {
	return ChatPostedEvent{
		MatchID:       matchID,
		Round:         round,
		Channel:       channel,
		ParticipantID: slot.ParticipantID,
		Name:          slot.Name,
		Text:          text,
		At:            time.Now().Unix(),
	}
}
