package wallet

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// Transaction 是账本中的一条转账提案。账本只追加，记录永不删除。
type Transaction struct {
	ID            uint64         `json:"id"`
	Submitter     common.Address `json:"submitter"`
	Target        common.Address `json:"target"`
	Value         *big.Int       `json:"value"`
	Payload       []byte         `json:"payload,omitempty"`
	Executed      bool           `json:"executed"`
	Confirmations int            `json:"confirmations"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	ExecutedAt    time.Time      `json:"executed_at,omitzero"`
}

// Settings 保存所有者可随时修改的金库参数。不保留历史版本。
type Settings struct {
	DailyLimit    *big.Int       `json:"daily_limit"`
	PerTxLimit    *big.Int       `json:"per_tx_limit"`
	RecoveryAgent common.Address `json:"recovery_agent"`
	Active        bool           `json:"active"`
}

// spendingWindow 记录单个所有者在当前 24 小时窗口内的累计支出。
// 窗口在检查时惰性求值，只在真正记账时复位。
type spendingWindow struct {
	start time.Time
	spent *big.Int
}

// RecoveryState 描述一次待生效的所有权恢复。nil 表示没有进行中的恢复。
type RecoveryState struct {
	PendingOwner common.Address `json:"pending_owner"`
	InitiatedAt  time.Time      `json:"initiated_at"`
}

const (
	// DefaultSpendingWindow 是限额统计的滚动窗口长度。
	DefaultSpendingWindow = 24 * time.Hour
	// DefaultRecoveryDelay 是恢复发起到生效之间的强制等待时间。
	DefaultRecoveryDelay = 7 * 24 * time.Hour
)

// DefaultAutomationCeiling 是自动化代理直通通道的固定上限（0.01 ether），
// 与金库的单笔/每日限额相互独立。
var DefaultAutomationCeiling = big.NewInt(10_000_000_000_000_000)

const (
	CodeValidation      xerrors.Code = "WALLET_VALIDATION_FAILED"
	CodeUnauthorized    xerrors.Code = "WALLET_UNAUTHORIZED"
	CodeStateConflict   xerrors.Code = "WALLET_STATE_CONFLICT"
	CodeLimitExceeded   xerrors.Code = "WALLET_LIMIT_EXCEEDED"
	CodeExecutionFailed xerrors.Code = "WALLET_EXECUTION_FAILED"
	CodeRecoveryTiming  xerrors.Code = "WALLET_RECOVERY_TIMING"
)

var (
	// ErrNotOwner 表示调用者不在所有者集合中。
	ErrNotOwner = xerrors.New(CodeUnauthorized, "caller is not an owner")
	// ErrNotAutomationAgent 表示调用者不是指定的自动化代理。
	ErrNotAutomationAgent = xerrors.New(CodeUnauthorized, "caller is not the automation agent")
	// ErrTransactionNotFound 表示账本中不存在该交易。
	ErrTransactionNotFound = xerrors.New(CodeStateConflict, "transaction not found")
	// ErrAlreadyExecuted 表示交易已执行，executed 标记不可逆转。
	ErrAlreadyExecuted = xerrors.New(CodeStateConflict, "transaction already executed")
	// ErrAlreadyConfirmed 表示该所有者已经确认过这笔交易。
	ErrAlreadyConfirmed = xerrors.New(CodeStateConflict, "transaction already confirmed by caller")
	// ErrQuorumNotReached 表示确认数尚未达到阈值。
	ErrQuorumNotReached = xerrors.New(CodeLimitExceeded, "confirmations below quorum threshold")
	// ErrNoPendingRecovery 表示当前没有进行中的恢复流程。
	ErrNoPendingRecovery = xerrors.New(CodeRecoveryTiming, "no pending recovery")
	// ErrRecoveryDelayNotMet 表示恢复等待期尚未结束。
	ErrRecoveryDelayNotMet = xerrors.New(CodeRecoveryTiming, "recovery delay not elapsed")
)

func init() {
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Message:   "wallet validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnauthorized, xerrors.Attributes{
		Message:   "wallet caller not authorized",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeStateConflict, xerrors.Attributes{
		Message:   "wallet state conflict",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLimitExceeded, xerrors.Attributes{
		Message:   "wallet spending limit exceeded",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeExecutionFailed, xerrors.Attributes{
		Message:   "wallet external transfer failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRecoveryTiming, xerrors.Attributes{
		Message:   "wallet recovery timing not satisfied",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// clone 返回交易的深拷贝，避免调用方看到账本内部状态的后续变化。
func (t *Transaction) clone() *Transaction {
	if t == nil {
		return nil
	}
	dup := *t
	if t.Value != nil {
		dup.Value = new(big.Int).Set(t.Value)
	}
	if t.Payload != nil {
		dup.Payload = append([]byte(nil), t.Payload...)
	}
	return &dup
}

// clone 返回设置的深拷贝。
func (s Settings) clone() Settings {
	dup := s
	if s.DailyLimit != nil {
		dup.DailyLimit = new(big.Int).Set(s.DailyLimit)
	}
	if s.PerTxLimit != nil {
		dup.PerTxLimit = new(big.Int).Set(s.PerTxLimit)
	}
	return dup
}

func (w *spendingWindow) snapshot() spendingWindow {
	return spendingWindow{start: w.start, spent: new(big.Int).Set(w.spent)}
}

func (w *spendingWindow) restore(snap spendingWindow) {
	w.start = snap.start
	w.spent = snap.spent
}

func isZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}
