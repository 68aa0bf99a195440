package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

func TestRecoveryHonorsDelay(t *testing.T) {
	ownerA, ownerB := addr(0x01), addr(0x02)
	agent := addr(0xfe)
	newcomer := addr(0x0a)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine := newTestEngine(t,
		testConfig([]common.Address{ownerA, ownerB}, 2, 10, 5),
		&fakeTransferer{},
		WithClock(clock.Now),
	)
	ctx := context.Background()

	if err := engine.CompleteRecovery(ctx, newcomer); !errors.Is(err, ErrNoPendingRecovery) {
		t.Fatalf("expected no-pending rejection, got %v", err)
	}
	if err := engine.InitiateRecovery(ctx, agent, newcomer); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	clock.Advance(6 * 24 * time.Hour)
	if err := engine.CompleteRecovery(ctx, newcomer); !errors.Is(err, ErrRecoveryDelayNotMet) {
		t.Fatalf("expected delay rejection at six days, got %v", err)
	}
	if pending, ok := engine.PendingRecovery(); !ok || pending.PendingOwner != newcomer {
		t.Fatal("failed completion must keep the pending recovery intact")
	}

	clock.Advance(24*time.Hour + time.Second)
	// 完成恢复不限调用者身份，延时本身就是防线。
	if err := engine.CompleteRecovery(ctx, addr(0x77)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !engine.IsOwner(newcomer) {
		t.Fatal("expected pending owner to join the set")
	}
	if !engine.IsOwner(ownerA) || !engine.IsOwner(ownerB) {
		t.Fatal("recovery must not evict existing owners")
	}
	if engine.Threshold() != 2 {
		t.Fatalf("recovery must not change the threshold, got %d", engine.Threshold())
	}
	if _, ok := engine.PendingRecovery(); ok {
		t.Fatal("completed recovery must clear the pending state")
	}
}

func TestInitiateRecoveryAuthorization(t *testing.T) {
	owner := addr(0x01)
	agent := addr(0xfe)
	engine := newTestEngine(t,
		testConfig([]common.Address{owner}, 1, 10, 5),
		&fakeTransferer{},
	)
	ctx := context.Background()

	if err := engine.InitiateRecovery(ctx, addr(0x77), addr(0x0a)); xerrors.CodeOf(err) != CodeUnauthorized {
		t.Fatalf("expected stranger rejection, got %v", err)
	}
	if err := engine.InitiateRecovery(ctx, agent, common.Address{}); xerrors.CodeOf(err) != CodeValidation {
		t.Fatalf("expected zero pending owner rejection, got %v", err)
	}

	// 所有者亦可发起，且后发起的覆盖先发起的。
	if err := engine.InitiateRecovery(ctx, agent, addr(0x0a)); err != nil {
		t.Fatalf("initiate by agent: %v", err)
	}
	if err := engine.InitiateRecovery(ctx, owner, addr(0x0b)); err != nil {
		t.Fatalf("initiate by owner: %v", err)
	}
	pending, ok := engine.PendingRecovery()
	if !ok || pending.PendingOwner != addr(0x0b) {
		t.Fatalf("expected latest initiation to win, got %+v", pending)
	}
}

func TestCompleteRecoveryRejectsExistingMember(t *testing.T) {
	ownerA, ownerB := addr(0x01), addr(0x02)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine := newTestEngine(t,
		testConfig([]common.Address{ownerA, ownerB}, 2, 10, 5),
		&fakeTransferer{},
		WithClock(clock.Now),
	)
	ctx := context.Background()

	if err := engine.InitiateRecovery(ctx, ownerA, ownerB); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	clock.Advance(8 * 24 * time.Hour)
	if err := engine.CompleteRecovery(ctx, ownerA); xerrors.CodeOf(err) != CodeValidation {
		t.Fatalf("expected member rejection, got %v", err)
	}
	if _, ok := engine.PendingRecovery(); !ok {
		t.Fatal("rejected completion must leave the pending state intact")
	}
	if len(engine.Owners()) != 2 {
		t.Fatalf("owner set must be unchanged, got %d members", len(engine.Owners()))
	}
}

func TestCancelRecovery(t *testing.T) {
	owner := addr(0x01)
	engine := newTestEngine(t,
		testConfig([]common.Address{owner}, 1, 10, 5),
		&fakeTransferer{},
	)
	ctx := context.Background()

	if err := engine.CancelRecovery(ctx, owner); xerrors.CodeOf(err) != CodeStateConflict {
		t.Fatalf("expected nothing-to-cancel conflict, got %v", err)
	}
	if err := engine.InitiateRecovery(ctx, owner, addr(0x0a)); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if err := engine.CancelRecovery(ctx, addr(0x77)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("cancel is owner-only, got %v", err)
	}
	if err := engine.CancelRecovery(ctx, owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := engine.PendingRecovery(); ok {
		t.Fatal("cancelled recovery must clear the pending state")
	}
}
