package relay

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/wallet"
)

func TestRoutingPolicyStreamFor(t *testing.T) {
	policy := RoutingPolicy{
		DefaultStream: "vault.events",
		Routes: map[wallet.Kind]string{
			wallet.KindTransactionExecuted: "vault.executions",
		},
		Drop: []wallet.Kind{wallet.KindTransactionConfirmed},
	}

	if stream, ok := policy.StreamFor(wallet.KindTransactionExecuted); !ok || stream != "vault.executions" {
		t.Fatalf("expected explicit route, got %q/%v", stream, ok)
	}
	if stream, ok := policy.StreamFor(wallet.KindDepositReceived); !ok || stream != "vault.events" {
		t.Fatalf("expected default stream, got %q/%v", stream, ok)
	}
	if _, ok := policy.StreamFor(wallet.KindTransactionConfirmed); ok {
		t.Fatal("dropped kind must not be routed")
	}

	empty := RoutingPolicy{}
	if _, ok := empty.StreamFor(wallet.KindDepositReceived); ok {
		t.Fatal("policy without default must drop unrouted kinds")
	}
}

func TestLoadRoutingPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	content := []byte(`defaultStream: vault.events
routes:
  transaction_executed: vault.executions
  automated_payment: vault.autopay
drop:
  - transaction_confirmed
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadRoutingPolicy(path)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if err := policy.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if stream, ok := policy.StreamFor(wallet.KindAutomatedPayment); !ok || stream != "vault.autopay" {
		t.Fatalf("expected yaml route to apply, got %q/%v", stream, ok)
	}
}

func TestRelayEmit(t *testing.T) {
	publisher := NewMemoryPublisher()
	relay := New(RoutingPolicy{
		DefaultStream: "vault.events",
		Routes: map[wallet.Kind]string{
			wallet.KindTransactionExecuted: "vault.executions",
		},
	}, publisher)
	ctx := context.Background()

	actor := common.BytesToAddress([]byte{0x01})
	target := common.BytesToAddress([]byte{0x99})
	err := relay.Emit(ctx, wallet.Event{
		Kind:   wallet.KindTransactionExecuted,
		Actor:  actor,
		TxID:   3,
		Target: target,
		Value:  big.NewInt(42),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	envelopes := publisher.Stream("vault.executions")
	if len(envelopes) != 1 {
		t.Fatalf("expected one envelope, got %d", len(envelopes))
	}
	envelope := envelopes[0]
	if envelope.ID == "" {
		t.Fatal("envelope must carry a generated id")
	}
	if envelope.Actor != actor.Hex() || envelope.Target != target.Hex() {
		t.Fatalf("unexpected addresses: %+v", envelope)
	}
	if envelope.ValueWei != "42" || envelope.TxID != 3 {
		t.Fatalf("unexpected payload: %+v", envelope)
	}

	if err := relay.Emit(ctx, wallet.Event{Kind: wallet.KindOwnerAdded, Actor: actor}); err != nil {
		t.Fatalf("emit default: %v", err)
	}
	if got := publisher.Stream("vault.events"); len(got) != 1 {
		t.Fatalf("expected default stream delivery, got %d", len(got))
	}
}
