package fanout

import (
	"context"
	"errors"
)

// AudienceKind 枚举事件的受众类型。
type AudienceKind string

const (
	// AudienceMatch 投递给对局房间内的全部观众与选手。
	AudienceMatch AudienceKind = "match"
	// AudienceSpectators 仅投递给对局的观战者。
	AudienceSpectators AudienceKind = "spectators"
	// AudienceParticipant 仅投递给单个参赛者的私有通道。
	AudienceParticipant AudienceKind = "participant"
	// AudienceTraitors 仅投递给对局中的内鬼频道。
	AudienceTraitors AudienceKind = "traitors"
)

// Audience 描述一次投递的目标受众。
type Audience struct {
	Kind          AudienceKind
	MatchID       string
	ParticipantID string
}

// Match 构造对局房间受众。
func Match(matchID string) Audience {
	return Audience{Kind: AudienceMatch, MatchID: matchID}
}

// Spectators 构造观战者受众。
func Spectators(matchID string) Audience {
	return Audience{Kind: AudienceSpectators, MatchID: matchID}
}

// Participant 构造单参赛者受众。
func Participant(matchID, participantID string) Audience {
	return Audience{Kind: AudienceParticipant, MatchID: matchID, ParticipantID: participantID}
}

// Traitors 构造内鬼频道受众。
func Traitors(matchID string) Audience {
	return Audience{Kind: AudienceTraitors, MatchID: matchID}
}

// Event 是可广播事件的封闭集合约束：每个事件变体携带固定字段，
// 并在构造时完成校验。
type Event interface {
	// EventName 返回事件的标签名，例如 "phase-changed"。
	EventName() string
}

// Publisher 将事件投递给指定受众。投递失败由调用方记录日志后丢弃，
// 客户端可随时重新拉取当前状态恢复。
type Publisher interface {
	Publish(ctx context.Context, audience Audience, event Event) error
	Close() error
}

// NoopPublisher 丢弃所有事件，用于测试与无广播部署。
type NoopPublisher struct{}

// Publish 实现 Publisher。
func (NoopPublisher) Publish(context.Context, Audience, Event) error { return nil }

// Close 实现 Publisher。
func (NoopPublisher) Close() error { return nil }

var _ Publisher = NoopPublisher{}

// Multi 将事件同时投递给多个 Publisher,常见组合是本地 Hub
// 加上跨节点的 RabbitMQ。任何一路失败都会汇总返回。
type Multi []Publisher

// Publish 实现 Publisher。
func (m Multi) Publish(ctx context.Context, audience Audience, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, audience, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 实现 Publisher。
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Publisher = Multi{}
