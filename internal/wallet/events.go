package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind 标识一次金库状态变更的类型。
type Kind string

const (
	KindDepositReceived      Kind = "deposit_received"
	KindTransactionSubmitted Kind = "transaction_submitted"
	KindTransactionConfirmed Kind = "transaction_confirmed"
	KindTransactionExecuted  Kind = "transaction_executed"
	KindAutomatedPayment     Kind = "automated_payment"
	KindSettingsUpdated      Kind = "settings_updated"
	KindOwnerAdded           Kind = "owner_added"
	KindOwnerRemoved         Kind = "owner_removed"
	KindRecoveryInitiated    Kind = "recovery_initiated"
	KindRecoveryCompleted    Kind = "recovery_completed"
	KindRecoveryCancelled    Kind = "recovery_cancelled"
)

// Event 描述一次已经提交成功的状态变更，携带操作者身份与相关金额。
// 事件只在操作成功落账之后发布；被回滚的操作不产生事件。
type Event struct {
	Kind          Kind           `json:"kind"`
	Actor         common.Address `json:"actor"`
	TxID          uint64         `json:"tx_id,omitempty"`
	Target        common.Address `json:"target,omitzero"`
	Value         *big.Int       `json:"value,omitempty"`
	Confirmations int            `json:"confirmations,omitempty"`
	Threshold     int            `json:"threshold,omitempty"`
	Memo          string         `json:"memo,omitempty"`
	At            time.Time      `json:"at"`
}

// Sink 消费金库事件。实现方不得阻塞过久，返回的错误只会被记录，
// 不会影响已经提交的状态变更。
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc 允许使用函数作为 Sink。
type SinkFunc func(ctx context.Context, event Event) error

// Emit 实现 Sink 接口。
func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// FanoutSink 将事件按顺序广播给多个下游。
type FanoutSink struct {
	sinks []Sink
}

// NewFanoutSink 创建一个新的 FanoutSink，忽略 nil 成员。
func NewFanoutSink(sinks ...Sink) *FanoutSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &FanoutSink{sinks: kept}
}

// Emit 依次投递事件，收集每个下游的最后一个错误。
func (f *FanoutSink) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	var last error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, event); err != nil {
			last = err
		}
	}
	return last
}

func (ev Event) withValue(value *big.Int) Event {
	if value != nil {
		ev.Value = new(big.Int).Set(value)
	}
	return ev
}
