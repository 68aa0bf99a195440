package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// InitiateRecovery 发起所有权恢复：记录待加入的新所有者与发起时间。
// 恢复代理或任一所有者均可发起；再次发起会覆盖先前的挂起状态。
func (e *Engine) InitiateRecovery(ctx context.Context, caller, newOwner common.Address) error {
	e.mu.Lock()
	events, err := e.initiateRecoveryLocked(caller, newOwner)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) initiateRecoveryLocked(caller, newOwner common.Address) ([]Event, error) {
	if caller != e.settings.RecoveryAgent && !e.isOwnerLocked(caller) {
		return nil, xerrors.New(CodeUnauthorized, "caller is neither recovery agent nor owner")
	}
	if isZeroAddress(newOwner) {
		return nil, xerrors.New(CodeValidation, "pending owner address cannot be zero")
	}
	now := e.now()
	e.recovery = &RecoveryState{PendingOwner: newOwner, InitiatedAt: now}
	return []Event{{
		Kind:   KindRecoveryInitiated,
		Actor:  caller,
		Target: newOwner,
		At:     now,
	}}, nil
}

// CompleteRecovery 在等待期结束后把挂起的新所有者加入集合。任何人都
// 可以调用；既有所有者不会被移除，阈值保持不变——恢复的语义是增加
// 一位共同所有者。
func (e *Engine) CompleteRecovery(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	events, err := e.completeRecoveryLocked(caller)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) completeRecoveryLocked(caller common.Address) ([]Event, error) {
	if e.recovery == nil {
		return nil, ErrNoPendingRecovery
	}
	now := e.now()
	if now.Sub(e.recovery.InitiatedAt) < e.delay {
		return nil, ErrRecoveryDelayNotMet
	}
	pending := e.recovery.PendingOwner
	if e.isOwnerLocked(pending) {
		return nil, xerrors.New(CodeValidation, "pending owner is already a member")
	}
	e.owners = append(e.owners, pending)
	e.recovery = nil
	return []Event{{
		Kind:      KindRecoveryCompleted,
		Actor:     caller,
		Target:    pending,
		Threshold: e.threshold,
		At:        now,
	}}, nil
}

// CancelRecovery 撤销挂起的恢复流程。仅所有者可调用。
func (e *Engine) CancelRecovery(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	events, err := e.cancelRecoveryLocked(caller)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) cancelRecoveryLocked(caller common.Address) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	if e.recovery == nil {
		return nil, xerrors.New(CodeStateConflict, "no pending recovery to cancel")
	}
	cancelled := e.recovery.PendingOwner
	e.recovery = nil
	return []Event{{
		Kind:   KindRecoveryCancelled,
		Actor:  caller,
		Target: cancelled,
		At:     e.now(),
	}}, nil
}
