package chain

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"SennaVault/internal/wallet"
	"SennaVault/pkg/logger"
)

// DepositWatcher 订阅金库合约地址上的日志，把每笔入账回放给引擎。
// 订阅断开后按固定间隔重连，直到上下文取消。
type DepositWatcher struct {
	subscriber logSubscriber
	vault      common.Address
	engine     *wallet.Engine
	retry      time.Duration
	log        *slog.Logger
}

// NewDepositWatcher 构建入账监听器。
func NewDepositWatcher(subscriber logSubscriber, vault common.Address, engine *wallet.Engine) *DepositWatcher {
	return &DepositWatcher{
		subscriber: subscriber,
		vault:      vault,
		engine:     engine,
		retry:      5 * time.Second,
		log:        logger.Named("deposit-watcher"),
	}
}

// SetRetryInterval 调整重连间隔，非正值忽略。
func (w *DepositWatcher) SetRetryInterval(d time.Duration) {
	if d > 0 {
		w.retry = d
	}
}

// Run 阻塞运行直到 ctx 取消。
func (w *DepositWatcher) Run(ctx context.Context) {
	for {
		if err := w.watchOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("入账订阅中断，稍后重连", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry):
		}
	}
}

func (w *DepositWatcher) watchOnce(ctx context.Context) error {
	logs := make(chan coretypes.Log, 64)
	sub, err := w.subscriber.SubscribeFilterLogs(ctx, gethcore.FilterQuery{
		Addresses: []common.Address{w.vault},
	}, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case entry := <-logs:
			if entry.Removed {
				continue
			}
			from, value := decodeDeposit(entry)
			w.engine.RecordDeposit(ctx, from, value)
		}
	}
}

// decodeDeposit 解析入账日志：第一个 indexed topic 是存款人地址，
// data 是 32 字节对齐的金额。
func decodeDeposit(entry coretypes.Log) (common.Address, *big.Int) {
	var from common.Address
	if len(entry.Topics) > 1 {
		from = common.BytesToAddress(entry.Topics[1].Bytes())
	}
	value := new(big.Int)
	if len(entry.Data) > 0 {
		value.SetBytes(entry.Data)
	}
	return from, value
}
