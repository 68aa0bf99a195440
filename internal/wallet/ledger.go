package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// Submit 向账本追加一条转账提案并返回其序号。提交时即校验单笔与每日
// 限额，但每日额度只在执行时真正扣减：挂起未执行的交易不占用额度。
// 提交会立即代提交者确认一次，因此阈值为 1 的金库（以及自动化代理的
// 提交）会在同一次调用内级联到执行；级联中任何失败都会把整个提交
// 原样回滚。
func (e *Engine) Submit(ctx context.Context, caller, target common.Address, value *big.Int, payload []byte) (uint64, error) {
	e.mu.Lock()
	id, events, err := e.submitLocked(ctx, caller, target, value, payload)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}
	e.publish(ctx, events...)
	return id, nil
}

func (e *Engine) submitLocked(ctx context.Context, caller, target common.Address, value *big.Int, payload []byte) (uint64, []Event, error) {
	if !e.isOwnerLocked(caller) {
		return 0, nil, ErrNotOwner
	}
	if isZeroAddress(target) {
		return 0, nil, xerrors.New(CodeValidation, "target address cannot be zero")
	}
	if value == nil || value.Sign() < 0 {
		return 0, nil, xerrors.New(CodeValidation, "value must be non-negative")
	}
	now := e.now()
	if err := e.checkLimitsLocked(caller, value, now); err != nil {
		return 0, nil, err
	}

	tx := &Transaction{
		ID:          e.nextID,
		Submitter:   caller,
		Target:      target,
		Value:       new(big.Int).Set(value),
		Payload:     append([]byte(nil), payload...),
		SubmittedAt: now,
	}
	e.txs = append(e.txs, tx)
	e.nextID++

	events := []Event{Event{
		Kind:      KindTransactionSubmitted,
		Actor:     caller,
		TxID:      tx.ID,
		Target:    target,
		Threshold: e.threshold,
		At:        now,
	}.withValue(value)}

	// 提交者的签名立即计入确认数；阈值为 1 或自动化代理提交时
	// 会就此级联到执行。
	cascade, err := e.confirmLocked(ctx, caller, tx.ID)
	if err != nil {
		// 级联失败时撤销刚刚追加的账目，对外表现为整个操作未发生。
		e.txs = e.txs[:len(e.txs)-1]
		e.nextID--
		delete(e.confirmations, tx.ID)
		return 0, nil, err
	}
	events = append(events, cascade...)
	return tx.ID, events, nil
}

// Confirm 记录一位所有者对交易的确认。同一所有者对同一交易至多确认
// 一次；确认数达到阈值时立即级联执行。执行失败会连同本次确认一起回滚。
func (e *Engine) Confirm(ctx context.Context, caller common.Address, id uint64) error {
	e.mu.Lock()
	events, err := e.confirmLocked(ctx, caller, id)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) confirmLocked(ctx context.Context, caller common.Address, id uint64) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	tx, err := e.transactionLocked(id)
	if err != nil {
		return nil, err
	}
	if tx.Executed {
		return nil, ErrAlreadyExecuted
	}
	if e.confirmations[id][caller] {
		return nil, ErrAlreadyConfirmed
	}

	if e.confirmations[id] == nil {
		e.confirmations[id] = make(map[common.Address]bool)
	}
	e.confirmations[id][caller] = true
	tx.Confirmations++

	events := []Event{{
		Kind:          KindTransactionConfirmed,
		Actor:         caller,
		TxID:          id,
		Confirmations: tx.Confirmations,
		Threshold:     e.threshold,
		At:            e.now(),
	}}

	if tx.Confirmations >= e.threshold {
		executed, err := e.executeLocked(ctx, caller, tx)
		if err != nil {
			delete(e.confirmations[id], caller)
			tx.Confirmations--
			return nil, err
		}
		events = append(events, executed...)
	}
	return events, nil
}

// Execute 执行一笔已达到法定确认数的交易。正常情况下执行由确认级联
// 触发，但任何所有者都可以直接调用，因此这里独立校验全部前置条件。
// 执行顺序是：标记 executed、扣减提交者窗口额度、发起外部转账；
// 转账失败时三者一并回滚，绝不留下已标记却未生效的账目。
func (e *Engine) Execute(ctx context.Context, caller common.Address, id uint64) error {
	e.mu.Lock()
	events, err := e.executeByID(ctx, caller, id)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) executeByID(ctx context.Context, caller common.Address, id uint64) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	tx, err := e.transactionLocked(id)
	if err != nil {
		return nil, err
	}
	return e.executeLocked(ctx, caller, tx)
}

func (e *Engine) executeLocked(ctx context.Context, caller common.Address, tx *Transaction) ([]Event, error) {
	if tx.Executed {
		return nil, ErrAlreadyExecuted
	}
	if tx.Confirmations < e.threshold {
		return nil, ErrQuorumNotReached
	}

	now := e.now()
	_, hadWindow := e.windows[tx.Submitter]
	snap, win := e.chargeWindowLocked(tx.Submitter, tx.Value, now)
	tx.Executed = true
	tx.ExecutedAt = now

	if err := e.transferer.Transfer(ctx, tx.Target, tx.Value, tx.Payload); err != nil {
		// 显式恢复先前状态：executed 标记、窗口额度以及惰性创建的窗口。
		tx.Executed = false
		tx.ExecutedAt = time.Time{}
		if hadWindow {
			win.restore(snap)
		} else {
			delete(e.windows, tx.Submitter)
		}
		return nil, xerrors.Wrap(CodeExecutionFailed, err, "external transfer failed")
	}

	return []Event{Event{
		Kind:          KindTransactionExecuted,
		Actor:         caller,
		TxID:          tx.ID,
		Target:        tx.Target,
		Confirmations: tx.Confirmations,
		Threshold:     e.threshold,
		At:            now,
	}.withValue(tx.Value)}, nil
}
