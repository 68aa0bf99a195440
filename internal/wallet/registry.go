package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// AddOwner 将新地址加入所有者集合。仅所有者可调用。
func (e *Engine) AddOwner(ctx context.Context, caller, owner common.Address) error {
	e.mu.Lock()
	events, err := e.addOwnerLocked(caller, owner)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) addOwnerLocked(caller, owner common.Address) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	if isZeroAddress(owner) {
		return nil, xerrors.New(CodeValidation, "owner address cannot be zero")
	}
	if e.isOwnerLocked(owner) {
		return nil, xerrors.New(CodeValidation, "address is already an owner")
	}
	e.owners = append(e.owners, owner)
	return []Event{{
		Kind:      KindOwnerAdded,
		Actor:     caller,
		Target:    owner,
		Threshold: e.threshold,
		At:        e.now(),
	}}, nil
}

// RemoveOwner 将地址移出所有者集合。移除后若阈值超过剩余人数则向下收紧，
// 始终保持 1 ≤ threshold ≤ |owners|。
func (e *Engine) RemoveOwner(ctx context.Context, caller, owner common.Address) error {
	e.mu.Lock()
	events, err := e.removeOwnerLocked(caller, owner)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) removeOwnerLocked(caller, owner common.Address) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	if !e.isOwnerLocked(owner) {
		return nil, xerrors.New(CodeStateConflict, "address is not an owner")
	}
	if len(e.owners) == 1 {
		return nil, xerrors.New(CodeValidation, "cannot remove the last owner")
	}
	kept := make([]common.Address, 0, len(e.owners)-1)
	for _, existing := range e.owners {
		if existing != owner {
			kept = append(kept, existing)
		}
	}
	e.owners = kept
	if e.threshold > len(e.owners) {
		e.threshold = len(e.owners)
	}
	return []Event{{
		Kind:      KindOwnerRemoved,
		Actor:     caller,
		Target:    owner,
		Threshold: e.threshold,
		At:        e.now(),
	}}, nil
}

// UpdateSettings 立即替换每日限额、单笔限额与恢复代理。仅所有者可调用，
// 没有延时或二次确认：单个所有者即可调高限额，这是有意保留的信任边界。
func (e *Engine) UpdateSettings(ctx context.Context, caller common.Address, dailyLimit, perTxLimit *big.Int, recoveryAgent common.Address) error {
	e.mu.Lock()
	events, err := e.updateSettingsLocked(caller, dailyLimit, perTxLimit, recoveryAgent)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ctx, events...)
	return nil
}

func (e *Engine) updateSettingsLocked(caller common.Address, dailyLimit, perTxLimit *big.Int, recoveryAgent common.Address) ([]Event, error) {
	if !e.isOwnerLocked(caller) {
		return nil, ErrNotOwner
	}
	if dailyLimit == nil || dailyLimit.Sign() < 0 {
		return nil, xerrors.New(CodeValidation, "daily limit must be non-negative")
	}
	if perTxLimit == nil || perTxLimit.Sign() < 0 {
		return nil, xerrors.New(CodeValidation, "per-transaction limit must be non-negative")
	}
	e.settings.DailyLimit = new(big.Int).Set(dailyLimit)
	e.settings.PerTxLimit = new(big.Int).Set(perTxLimit)
	e.settings.RecoveryAgent = recoveryAgent
	return []Event{{
		Kind:  KindSettingsUpdated,
		Actor: caller,
		Memo:  "limits and recovery agent replaced",
		At:    e.now(),
	}}, nil
}
