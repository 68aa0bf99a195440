package autopay

import (
	"context"
	stdErrors "errors"
	"testing"
)

func seedRequest(t *testing.T, store *MemoryStore, id string, maxRetries int) {
	t.Helper()
	err := store.Create(context.Background(), &Request{
		ID:         id,
		Target:     "0x00000000000000000000000000000000000000aa",
		ValueWei:   "100",
		Status:     StatusPending,
		MaxRetries: maxRetries,
	})
	if err != nil {
		t.Fatalf("seed request %s: %v", id, err)
	}
}

func TestMemoryStoreCreateConflict(t *testing.T) {
	store := NewMemoryStore()
	seedRequest(t, store, "p-1", 3)

	err := store.Create(context.Background(), &Request{ID: "p-1", Target: "0xbb", ValueWei: "1"})
	if !stdErrors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRequest(t, store, "p-1", 2)

	claimed, err := store.Claim(ctx, "p-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("expected running with one attempt, got %s/%d", claimed.Status, claimed.Attempts)
	}

	if _, err := store.Claim(ctx, "p-1"); !stdErrors.Is(err, ErrPaymentConflict) {
		t.Fatalf("claiming a running payment must conflict, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "p-1", PaymentResult{Delivered: true}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "p-1"); !stdErrors.Is(err, ErrPaymentCompleted) {
		t.Fatalf("claiming a completed payment must fail, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !stdErrors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreClaimExhausted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRequest(t, store, "p-1", 1)

	if _, err := store.Claim(ctx, "p-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "p-1", CodePaymentProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "p-1"); !stdErrors.Is(err, ErrPaymentExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}
}

func TestMemoryStoreListFiltersAndStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRequest(t, store, "p-1", 3)
	seedRequest(t, store, "p-2", 3)
	seedRequest(t, store, "p-3", 3)
	if err := store.MarkSucceeded(ctx, "p-2", PaymentResult{Delivered: true}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := store.MarkFailed(ctx, "p-3", CodePaymentRejected, "declined", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := store.List(ctx, ListOptions{Statuses: []Status{StatusPending}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "p-1" {
		t.Fatalf("expected only p-1 pending, got %v", pending)
	}

	matched, err := store.List(ctx, ListOptions{Query: "declined"})
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "p-3" {
		t.Fatalf("expected query to match p-3, got %v", matched)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
