package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisherConfig 描述 RabbitMQ 发布器的连接参数。
type RabbitMQPublisherConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQPublisher 把信封发布到 topic 交换机，路由键即流名称。
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher 创建 RabbitMQ 发布器。
func NewRabbitMQPublisher(cfg RabbitMQPublisherConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "sennavault.events"
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
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish 实现 Publisher。
func (p *RabbitMQPublisher) Publish(ctx context.Context, stream string, envelope Envelope) error {
	if p == nil || p.ch == nil {
		return errors.New("RabbitMQ 发布器未初始化")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, stream, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
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
