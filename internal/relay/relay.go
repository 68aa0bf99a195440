// Package relay 把金库事件转成带序号的信封，按路由策略投递到外部
// 消息系统，供对账与风控等下游消费。
package relay

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"SennaVault/internal/wallet"
)

// Envelope 是跨进程传输的事件载体。金额以十进制字符串表示，避免
// 下游语言的整数精度问题。
type Envelope struct {
	ID            string      `json:"id"`
	Kind          wallet.Kind `json:"kind"`
	Actor         string      `json:"actor"`
	TxID          uint64      `json:"tx_id,omitempty"`
	Target        string      `json:"target,omitempty"`
	ValueWei      string      `json:"value_wei,omitempty"`
	Confirmations int         `json:"confirmations,omitempty"`
	Threshold     int         `json:"threshold,omitempty"`
	Memo          string      `json:"memo,omitempty"`
	At            time.Time   `json:"at"`
}

// Publisher 把信封投递到具体的消息系统。
type Publisher interface {
	Publish(ctx context.Context, stream string, envelope Envelope) error
	Close() error
}

// Relay 实现 wallet.Sink，按策略把事件转发给 Publisher。
type Relay struct {
	policy    RoutingPolicy
	publisher Publisher
}

// New 构建事件中继。
func New(policy RoutingPolicy, publisher Publisher) *Relay {
	return &Relay{policy: policy, publisher: publisher}
}

// Emit 实现 wallet.Sink。
func (r *Relay) Emit(ctx context.Context, event wallet.Event) error {
	stream, ok := r.policy.StreamFor(event.Kind)
	if !ok {
		return nil
	}
	envelope := Envelope{
		ID:            uuid.NewString(),
		Kind:          event.Kind,
		Actor:         event.Actor.Hex(),
		TxID:          event.TxID,
		Confirmations: event.Confirmations,
		Threshold:     event.Threshold,
		Memo:          event.Memo,
		At:            event.At,
	}
	if event.Target != (common.Address{}) {
		envelope.Target = event.Target.Hex()
	}
	if event.Value != nil {
		envelope.ValueWei = event.Value.String()
	}
	return r.publisher.Publish(ctx, stream, envelope)
}

// Close 释放底层发布器。
func (r *Relay) Close() error {
	if r == nil || r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}
