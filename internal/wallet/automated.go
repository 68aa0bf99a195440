package wallet

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// ExecuteAutomated 是自动化代理的小额直通通道：不经过账本、不需要确认、
// 不占用每日额度，只受一个固定的小额上限约束。与法定人数路径不同，
// 底层转账的失败以布尔值返回而不是错误——调用方必须显式检查返回值。
// 这一不对称是从既有行为中保留下来的，两条路径不做统一。
func (e *Engine) ExecuteAutomated(ctx context.Context, caller, target common.Address, value *big.Int, payload []byte) (bool, error) {
	if caller != e.automationAgent || isZeroAddress(e.automationAgent) {
		return false, ErrNotAutomationAgent
	}
	if isZeroAddress(target) {
		return false, xerrors.New(CodeValidation, "target address cannot be zero")
	}
	if value == nil || value.Sign() < 0 {
		return false, xerrors.New(CodeValidation, "value must be non-negative")
	}
	if value.Cmp(e.automationCeiling) > 0 {
		return false, xerrors.New(CodeLimitExceeded, "value exceeds automation ceiling")
	}

	if err := e.transferer.Transfer(ctx, target, value, payload); err != nil {
		e.log.Warn("自动化转账未成功",
			slog.String("target", target.Hex()),
			slog.String("value_wei", value.String()),
			slog.Any("error", err),
		)
		return false, nil
	}

	e.publish(ctx, Event{
		Kind:   KindAutomatedPayment,
		Actor:  caller,
		Target: target,
		At:     e.now(),
	}.withValue(value))
	return true, nil
}

// AutomationCeiling 返回直通通道的固定上限。
func (e *Engine) AutomationCeiling() *big.Int {
	return new(big.Int).Set(e.automationCeiling)
}
