package token

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/wallet"
)

func tokenAddr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func TestMintRequiresController(t *testing.T) {
	controller := tokenAddr(0x01)
	ledger := NewLedger(controller)

	if err := ledger.Mint(tokenAddr(0x77), tokenAddr(0x02), big.NewInt(5)); xerrors.CodeOf(err) != xerrors.CodeUnauthorized {
		t.Fatalf("expected controller-only rejection, got %v", err)
	}
	if err := ledger.Mint(controller, tokenAddr(0x02), big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := ledger.BalanceOf(tokenAddr(0x02)); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected balance 5, got %s", got)
	}
	if got := ledger.TotalSupply(); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected supply 5, got %s", got)
	}
}

func TestTransferControlInvalidatesOldController(t *testing.T) {
	first, second := tokenAddr(0x01), tokenAddr(0x02)
	ledger := NewLedger(first)

	if err := ledger.TransferControl(second, second); xerrors.CodeOf(err) != xerrors.CodeUnauthorized {
		t.Fatalf("expected controller-only rejection, got %v", err)
	}
	if err := ledger.TransferControl(first, second); err != nil {
		t.Fatalf("transfer control: %v", err)
	}
	// 旧控制器立即失效。
	if err := ledger.Mint(first, tokenAddr(0x03), big.NewInt(1)); xerrors.CodeOf(err) != xerrors.CodeUnauthorized {
		t.Fatalf("expected old controller rejection, got %v", err)
	}
	if err := ledger.Mint(second, tokenAddr(0x03), big.NewInt(1)); err != nil {
		t.Fatalf("mint by new controller: %v", err)
	}
}

func TestDepositMinterMirrorsDeposits(t *testing.T) {
	controller := tokenAddr(0x01)
	ledger := NewLedger(controller)
	minter := NewDepositMinter(ledger, controller)
	ctx := context.Background()

	depositor := tokenAddr(0x42)
	event := wallet.Event{Kind: wallet.KindDepositReceived, Actor: depositor, Value: big.NewInt(123)}
	if err := minter.Emit(ctx, event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := ledger.BalanceOf(depositor); got.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("expected mirrored deposit, got %s", got)
	}

	// 非入账事件不触发铸造。
	other := wallet.Event{Kind: wallet.KindTransactionExecuted, Actor: depositor, Value: big.NewInt(9)}
	if err := minter.Emit(ctx, other); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := ledger.TotalSupply(); got.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("supply must only track deposits, got %s", got)
	}
}
