// Package token 维护一份入账镜像账本：金库每收到一笔存款，就按 1:1
// 给存款人记一笔份额。铸造入口由唯一的控制器持有，控制器一经交接,
// 旧地址立即失效。
package token

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/wallet"
)

// Ledger 是内存中的份额账本。
type Ledger struct {
	mu         sync.Mutex
	controller common.Address
	balances   map[common.Address]*big.Int
	supply     *big.Int
}

// NewLedger 构建账本并设定初始控制器。
func NewLedger(controller common.Address) *Ledger {
	return &Ledger{
		controller: controller,
		balances:   make(map[common.Address]*big.Int),
		supply:     new(big.Int),
	}
}

// Mint 给指定持有人增发份额。仅当前控制器可调用。
func (l *Ledger) Mint(caller, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "mint amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return xerrors.New(xerrors.CodeUnauthorized, "caller is not the ledger controller")
	}
	balance, ok := l.balances[holder]
	if !ok {
		balance = new(big.Int)
		l.balances[holder] = balance
	}
	balance.Add(balance, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// TransferControl 把铸造权移交给新控制器。仅当前控制器可调用。
func (l *Ledger) TransferControl(caller, next common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return xerrors.New(xerrors.CodeUnauthorized, "caller is not the ledger controller")
	}
	if next == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "next controller cannot be zero")
	}
	l.controller = next
	return nil
}

// Controller 返回当前控制器地址。
func (l *Ledger) Controller() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.controller
}

// BalanceOf 返回持有人的份额。
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, ok := l.balances[holder]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// TotalSupply 返回已铸造的总份额。
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

// DepositMinter 把金库入账事件转成铸造操作，作为引擎的事件下游挂载。
type DepositMinter struct {
	ledger     *Ledger
	controller common.Address
}

// NewDepositMinter 构建入账铸造器，controller 必须与账本控制器一致。
func NewDepositMinter(ledger *Ledger, controller common.Address) *DepositMinter {
	return &DepositMinter{ledger: ledger, controller: controller}
}

// Emit 实现 wallet.Sink，只响应入账事件。
func (m *DepositMinter) Emit(_ context.Context, event wallet.Event) error {
	if event.Kind != wallet.KindDepositReceived || event.Value == nil {
		return nil
	}
	return m.ledger.Mint(m.controller, event.Actor, event.Value)
}
