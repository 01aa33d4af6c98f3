package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述跨节点广播所用的 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQPublisher 将事件发布到 topic exchange，路由键为
// arena.<对局>.<受众>[.<参赛者>]，由边缘节点按受众订阅后推送给客户端。
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher 创建 RabbitMQ 广播实例。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "arena.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish 将事件序列化后发布。不做重试：广播丢失由客户端重新拉取状态弥补。
func (p *RabbitMQPublisher) Publish(ctx context.Context, audience Audience, event Event) error {
	if p == nil || p.ch == nil {
		return errors.New("RabbitMQ 广播未初始化")
	}
	body, err := json.Marshal(struct {
		Event   string `json:"event"`
		Payload Event  `json:"payload"`
	}{Event: event.EventName(), Payload: event})
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey(audience), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func routingKey(audience Audience) string {
	key := fmt.Sprintf("arena.%s.%s", audience.MatchID, audience.Kind)
	if audience.Kind == AudienceParticipant {
		key = fmt.Sprintf("%s.%s", key, audience.ParticipantID)
	}
	return key
}

// Close 关闭 RabbitMQ 连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ Publisher = (*RabbitMQPublisher)(nil)
