package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisherConfig 描述 Redis 发布器的连接参数。
type RedisPublisherConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisPublisher 通过 Redis Pub/Sub 广播事件信封。
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher 创建 Redis 发布器。
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

// Publish 实现 Publisher。
func (p *RedisPublisher) Publish(ctx context.Context, stream string, envelope Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, stream, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
