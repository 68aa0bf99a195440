package wallet

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
	"SennaVault/pkg/logger"
)

// Transferer 执行真正的链上转账。实现方必须在转账未被打包成功时返回错误。
type Transferer interface {
	Transfer(ctx context.Context, target common.Address, value *big.Int, payload []byte) error
}

// Clock 返回当前时间。引擎的所有时间判断（窗口复位、恢复延时）都经由
// 该函数求值，便于测试注入。
type Clock func() time.Time

// Config 描述构建引擎所需的初始参数。
type Config struct {
	Owners            []common.Address
	Threshold         int
	DailyLimit        *big.Int
	PerTxLimit        *big.Int
	RecoveryAgent     common.Address
	AutomationAgent   common.Address
	AutomationCeiling *big.Int
	SpendingWindow    time.Duration
	RecoveryDelay     time.Duration
}

// Engine 是单个金库实例。一个进程可以持有多个互不相关的 Engine，
// 每个实例拥有独立的互斥锁，没有进程级单例。
type Engine struct {
	mu sync.Mutex

	owners    []common.Address
	threshold int
	settings  Settings

	automationAgent   common.Address
	automationCeiling *big.Int

	txs           []*Transaction
	nextID        uint64
	confirmations map[uint64]map[common.Address]bool

	windows  map[common.Address]*spendingWindow
	window   time.Duration
	recovery *RecoveryState
	delay    time.Duration

	transferer Transferer
	sink       Sink
	clock      Clock
	log        *slog.Logger
}

// Option 定义引擎的可选配置。
type Option func(*Engine)

// WithClock 注入自定义时钟，主要用于测试时间窗口行为。
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSink 配置事件下游。
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New 校验配置并构建金库引擎。
func New(cfg Config, transferer Transferer, opts ...Option) (*Engine, error) {
	if len(cfg.Owners) == 0 {
		return nil, xerrors.New(CodeValidation, "owner set cannot be empty")
	}
	seen := make(map[common.Address]bool, len(cfg.Owners))
	for _, owner := range cfg.Owners {
		if isZeroAddress(owner) {
			return nil, xerrors.New(CodeValidation, "owner address cannot be zero")
		}
		if seen[owner] {
			return nil, xerrors.New(CodeValidation, "duplicate owner "+owner.Hex())
		}
		seen[owner] = true
	}
	if cfg.Threshold < 1 || cfg.Threshold > len(cfg.Owners) {
		return nil, xerrors.New(CodeValidation, "threshold out of bounds")
	}
	if cfg.DailyLimit == nil || cfg.DailyLimit.Sign() < 0 {
		return nil, xerrors.New(CodeValidation, "daily limit must be non-negative")
	}
	if cfg.PerTxLimit == nil || cfg.PerTxLimit.Sign() < 0 {
		return nil, xerrors.New(CodeValidation, "per-transaction limit must be non-negative")
	}
	if transferer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "transferer is required")
	}

	ceiling := cfg.AutomationCeiling
	if ceiling == nil {
		ceiling = DefaultAutomationCeiling
	}
	window := cfg.SpendingWindow
	if window <= 0 {
		window = DefaultSpendingWindow
	}
	delay := cfg.RecoveryDelay
	if delay <= 0 {
		delay = DefaultRecoveryDelay
	}

	e := &Engine{
		owners:    append([]common.Address(nil), cfg.Owners...),
		threshold: cfg.Threshold,
		settings: Settings{
			DailyLimit:    new(big.Int).Set(cfg.DailyLimit),
			PerTxLimit:    new(big.Int).Set(cfg.PerTxLimit),
			RecoveryAgent: cfg.RecoveryAgent,
			Active:        true,
		},
		automationAgent:   cfg.AutomationAgent,
		automationCeiling: new(big.Int).Set(ceiling),
		nextID:            1,
		confirmations:     make(map[uint64]map[common.Address]bool),
		windows:           make(map[common.Address]*spendingWindow),
		window:            window,
		delay:             delay,
		transferer:        transferer,
		clock:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.log == nil {
		e.log = logger.Named("wallet")
	}
	return e, nil
}

// RecordDeposit 将链上观察到的入账以事件形式广播。入账不改变引擎状态，
// 余额由外部账本负责。
func (e *Engine) RecordDeposit(ctx context.Context, from common.Address, value *big.Int) {
	e.publish(ctx, Event{
		Kind:  KindDepositReceived,
		Actor: from,
		At:    e.now(),
	}.withValue(value))
}

// Owners 返回所有者集合的副本。
func (e *Engine) Owners() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]common.Address(nil), e.owners...)
}

// Threshold 返回当前的确认阈值。
func (e *Engine) Threshold() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// IsOwner 判断地址是否属于所有者集合。
func (e *Engine) IsOwner(addr common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isOwnerLocked(addr)
}

// AutomationAgent 返回自动化代理地址。
func (e *Engine) AutomationAgent() common.Address {
	return e.automationAgent
}

// Settings 返回当前金库设置的副本。
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.clone()
}

// Transaction 返回指定交易的副本。
func (e *Engine) Transaction(id uint64) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.transactionLocked(id)
	if err != nil {
		return nil, err
	}
	return tx.clone(), nil
}

// Transactions 返回最近提交的若干交易，按提交顺序从新到旧排列。
func (e *Engine) Transactions(limit int) []*Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.txs) {
		limit = len(e.txs)
	}
	results := make([]*Transaction, 0, limit)
	for i := len(e.txs) - 1; i >= len(e.txs)-limit; i-- {
		results = append(results, e.txs[i].clone())
	}
	return results
}

// ConfirmedBy 判断某所有者是否已确认指定交易。
func (e *Engine) ConfirmedBy(id uint64, owner common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmations[id][owner]
}

// PendingRecovery 返回进行中的恢复流程，没有时第二个返回值为 false。
func (e *Engine) PendingRecovery() (RecoveryState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recovery == nil {
		return RecoveryState{}, false
	}
	return *e.recovery, true
}

// SpentInWindow 返回某所有者当前窗口内的累计支出。窗口已过期时返回零，
// 与下一次记账看到的值保持一致。
func (e *Engine) SpentInWindow(owner common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	win, ok := e.windows[owner]
	if !ok || e.now().Sub(win.start) >= e.window {
		return new(big.Int)
	}
	return new(big.Int).Set(win.spent)
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) isOwnerLocked(addr common.Address) bool {
	for _, owner := range e.owners {
		if owner == addr {
			return true
		}
	}
	return false
}

func (e *Engine) transactionLocked(id uint64) (*Transaction, error) {
	if id == 0 || id >= e.nextID {
		return nil, ErrTransactionNotFound
	}
	return e.txs[id-1], nil
}

// publish 在状态变更提交之后投递事件：先写入审计日志，再交给下游。
// 下游失败只记录，不回滚已提交的变更。
func (e *Engine) publish(ctx context.Context, events ...Event) {
	for _, ev := range events {
		attrs := []any{
			slog.String("kind", string(ev.Kind)),
			slog.String("actor", ev.Actor.Hex()),
		}
		if ev.TxID != 0 {
			attrs = append(attrs, slog.Uint64("tx_id", ev.TxID))
		}
		if ev.Value != nil {
			attrs = append(attrs, slog.String("value_wei", ev.Value.String()))
		}
		logger.Audit().Info("wallet_event", attrs...)

		if e.sink == nil {
			continue
		}
		if err := e.sink.Emit(ctx, ev); err != nil {
			e.log.Warn("事件投递失败",
				slog.String("kind", string(ev.Kind)),
				slog.Any("error", err),
			)
		}
	}
}
