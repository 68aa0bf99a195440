package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

func automationConfig(agent common.Address) Config {
	cfg := testConfig([]common.Address{addr(0x01)}, 1, 10, 1)
	cfg.AutomationAgent = agent
	cfg.AutomationCeiling = big.NewInt(1000)
	return cfg
}

func TestExecuteAutomatedRequiresAgent(t *testing.T) {
	agent := addr(0xaa)
	engine := newTestEngine(t, automationConfig(agent), &fakeTransferer{})
	ctx := context.Background()

	cases := []struct {
		name   string
		caller common.Address
	}{
		{"stranger", addr(0x77)},
		{"owner", addr(0x01)},
		{"zero address", common.Address{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := engine.ExecuteAutomated(ctx, tc.caller, addr(0x99), big.NewInt(1), nil)
			if ok || !errors.Is(err, ErrNotAutomationAgent) {
				t.Fatalf("expected agent-only rejection, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestExecuteAutomatedNoAgentConfigured(t *testing.T) {
	engine := newTestEngine(t, testConfig([]common.Address{addr(0x01)}, 1, 10, 1), &fakeTransferer{})

	// 未配置代理时零地址调用也必须拒绝，否则零值就成了后门。
	ok, err := engine.ExecuteAutomated(context.Background(), common.Address{}, addr(0x99), big.NewInt(1), nil)
	if ok || !errors.Is(err, ErrNotAutomationAgent) {
		t.Fatalf("expected rejection without a configured agent, got ok=%v err=%v", ok, err)
	}
}

func TestExecuteAutomatedCeiling(t *testing.T) {
	agent := addr(0xaa)
	engine := newTestEngine(t, automationConfig(agent), &fakeTransferer{})
	ctx := context.Background()

	ok, err := engine.ExecuteAutomated(ctx, agent, addr(0x99), big.NewInt(1001), nil)
	if ok || xerrors.CodeOf(err) != CodeLimitExceeded {
		t.Fatalf("expected ceiling rejection, got ok=%v err=%v", ok, err)
	}
	if ok, err := engine.ExecuteAutomated(ctx, agent, addr(0x99), big.NewInt(1000), nil); !ok || err != nil {
		t.Fatalf("expected exact-ceiling payment to pass, got ok=%v err=%v", ok, err)
	}
}

func TestExecuteAutomatedBypassesLedgerAndLimits(t *testing.T) {
	agent := addr(0xaa)
	transferer := &fakeTransferer{}
	recorder := &eventRecorder{}
	engine := newTestEngine(t, automationConfig(agent), transferer, WithSink(recorder))
	ctx := context.Background()

	// 金额 100 超过单笔限额 1，但直通通道只看自己的上限。
	ok, err := engine.ExecuteAutomated(ctx, agent, addr(0x99), big.NewInt(100), nil)
	if !ok || err != nil {
		t.Fatalf("automated payment: ok=%v err=%v", ok, err)
	}
	if transferer.count() != 1 {
		t.Fatalf("expected one transfer, got %d", transferer.count())
	}
	if len(engine.Transactions(0)) != 0 {
		t.Fatal("automated payments must not appear in the ledger")
	}
	if got := engine.SpentInWindow(agent); got.Sign() != 0 {
		t.Fatalf("automated payments must not charge the daily window, got %s", got)
	}

	kinds := recorder.kinds()
	if len(kinds) != 1 || kinds[0] != KindAutomatedPayment {
		t.Fatalf("expected a single automated payment event, got %v", kinds)
	}
}

func TestExecuteAutomatedTransferFailureIsBoolean(t *testing.T) {
	agent := addr(0xaa)
	transferer := &fakeTransferer{}
	transferer.fail(errors.New("rpc unavailable"))
	recorder := &eventRecorder{}
	engine := newTestEngine(t, automationConfig(agent), transferer, WithSink(recorder))

	// 转账层失败通过返回值表达而不是 error，调用方必须检查布尔结果。
	ok, err := engine.ExecuteAutomated(context.Background(), agent, addr(0x99), big.NewInt(1), nil)
	if ok {
		t.Fatal("expected ok=false on transfer failure")
	}
	if err != nil {
		t.Fatalf("transfer failure must not surface as an error, got %v", err)
	}
	if len(recorder.kinds()) != 0 {
		t.Fatal("failed automated payment must not emit an event")
	}
}
