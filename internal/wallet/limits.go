package wallet

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// checkLimitsLocked 在提交时校验单笔与滚动窗口限额。检查本身不产生
// 任何状态变更：窗口是否过期按当前时间惰性求值，复位只发生在记账时。
func (e *Engine) checkLimitsLocked(owner common.Address, value *big.Int, now time.Time) error {
	if value.Cmp(e.settings.PerTxLimit) > 0 {
		return xerrors.New(CodeLimitExceeded, "value exceeds per-transaction limit")
	}
	spent := new(big.Int)
	if win, ok := e.windows[owner]; ok && now.Sub(win.start) < e.window {
		spent.Set(win.spent)
	}
	if spent.Add(spent, value).Cmp(e.settings.DailyLimit) > 0 {
		return xerrors.New(CodeLimitExceeded, "value exceeds rolling daily limit")
	}
	return nil
}

// chargeWindowLocked 在执行成功路径上把金额计入提交者的窗口，
// 必要时先复位过期窗口。返回记账前的快照，供执行失败时回滚。
func (e *Engine) chargeWindowLocked(owner common.Address, value *big.Int, now time.Time) (spendingWindow, *spendingWindow) {
	win, ok := e.windows[owner]
	if !ok {
		win = &spendingWindow{start: now, spent: new(big.Int)}
		e.windows[owner] = win
	}
	snap := win.snapshot()
	if now.Sub(win.start) >= e.window {
		win.start = now
		win.spent = new(big.Int)
	}
	win.spent = new(big.Int).Add(win.spent, value)
	return snap, win
}
