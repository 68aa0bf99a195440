package autopay

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

type fakePayer struct {
	delivered bool
	err       error
	calls     int
	lastValue *big.Int
}

func (f *fakePayer) ExecuteAutomated(_ context.Context, _, _ common.Address, value *big.Int, _ []byte) (bool, error) {
	f.calls++
	f.lastValue = new(big.Int).Set(value)
	if f.err != nil {
		return false, f.err
	}
	return f.delivered, nil
}

func newProcessorFixture(payer *fakePayer) (*Processor, *MemoryStore, *MemoryQueue) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	agent := common.BytesToAddress([]byte{0xaa})
	return NewProcessor(payer, agent, store, queue, queue), store, queue
}

func TestProcessorMarksSucceeded(t *testing.T) {
	payer := &fakePayer{delivered: true}
	processor, store, _ := newProcessorFixture(payer)
	ctx := context.Background()
	seedRequest(t, store, "p-1", 3)

	if err := processor.handle(ctx, "p-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	request, err := store.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if request.Status != StatusSucceeded || request.Result == nil || !request.Result.Delivered {
		t.Fatalf("expected delivered payment, got %+v", request)
	}
	if payer.calls != 1 {
		t.Fatalf("expected one payment call, got %d", payer.calls)
	}
	if payer.lastValue.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected parsed value 100, got %s", payer.lastValue)
	}
}

func TestProcessorDeclinedPaymentIsTerminal(t *testing.T) {
	payer := &fakePayer{delivered: false}
	processor, store, queue := newProcessorFixture(payer)
	ctx := context.Background()
	seedRequest(t, store, "p-1", 3)

	if err := processor.handle(ctx, "p-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	request, _ := store.Get(ctx, "p-1")
	if request.Status != StatusFailed || request.ErrorCode != string(CodePaymentRejected) {
		t.Fatalf("expected terminal rejection, got %+v", request)
	}
	if len(queue.ch) != 0 {
		t.Fatal("declined payment must not be requeued")
	}
}

func TestProcessorRetryableFailureRequeues(t *testing.T) {
	payer := &fakePayer{err: xerrors.New(CodePaymentProcessing, "node flapping")}
	processor, store, queue := newProcessorFixture(payer)
	ctx := context.Background()
	seedRequest(t, store, "p-1", 3)

	if err := processor.handle(ctx, "p-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	request, _ := store.Get(ctx, "p-1")
	if request.Status != StatusFailed || request.ErrorCode != string(CodePaymentProcessing) {
		t.Fatalf("expected retryable failure record, got %+v", request)
	}
	if len(queue.ch) != 1 {
		t.Fatalf("expected requeue, queue depth %d", len(queue.ch))
	}
}

func TestProcessorNonRetryableFailureDoesNotRequeue(t *testing.T) {
	payer := &fakePayer{err: xerrors.New(CodePaymentValidation, "value exceeds automation ceiling")}
	processor, store, queue := newProcessorFixture(payer)
	ctx := context.Background()
	seedRequest(t, store, "p-1", 3)

	if err := processor.handle(ctx, "p-1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	request, _ := store.Get(ctx, "p-1")
	if request.Status != StatusFailed {
		t.Fatalf("expected failure record, got %+v", request)
	}
	if len(queue.ch) != 0 {
		t.Fatal("non-retryable failure must not be requeued")
	}
}

func TestProcessorInvalidStoredRecordIsTerminal(t *testing.T) {
	payer := &fakePayer{delivered: true}
	processor, store, _ := newProcessorFixture(payer)
	ctx := context.Background()
	if err := store.Create(ctx, &Request{
		ID:         "p-bad",
		Target:     "not-an-address",
		ValueWei:   "100",
		Status:     StatusPending,
		MaxRetries: 3,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := processor.handle(ctx, "p-bad"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	request, _ := store.Get(ctx, "p-bad")
	if request.Status != StatusFailed || request.ErrorCode != string(CodePaymentValidation) {
		t.Fatalf("expected validation failure, got %+v", request)
	}
	if payer.calls != 0 {
		t.Fatal("invalid record must not reach the payer")
	}
}
