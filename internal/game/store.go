package game

import "context"

// 聊天频道。
const (
	ChannelMatch    = "match"
	ChannelTraitors = "traitors"
)

// Store 抽象对局数据的持久化：投票与聊天为追加写入，终局快照
// 整体落盘。核心只通过这些窄动词读写，不关心表结构。
type Store interface {
	AppendVote(ctx context.Context, matchID string, round int, voterID, targetID, rationale string) error
	AppendChat(ctx context.Context, matchID string, round int, channel, participantID, text string) error
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, matchID string) (*Snapshot, error)
	Close() error
}
