package autopay

import (
	"context"
	"errors"
	"testing"

	xerrors "SennaVault/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	ctx := context.Background()

	cases := []struct {
		name   string
		params SubmitParams
	}{
		{"bad address", SubmitParams{Target: "nope", ValueWei: "100"}},
		{"bad value", SubmitParams{Target: "0x00000000000000000000000000000000000000aa", ValueWei: "abc"}},
		{"negative value", SubmitParams{Target: "0x00000000000000000000000000000000000000aa", ValueWei: "-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Submit(ctx, tc.params); xerrors.CodeOf(err) != CodePaymentValidation {
				t.Fatalf("expected validation rejection, got %v", err)
			}
		})
	}
}

func TestServiceSubmitIsIdempotentByID(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	ctx := context.Background()

	params := SubmitParams{
		ID:       "fixed-id",
		Target:   "0x00000000000000000000000000000000000000aa",
		ValueWei: "100",
	}
	first, err := service.Submit(ctx, params)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(ctx, params)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ID != second.ID || second.Status != StatusPending {
		t.Fatalf("expected idempotent resubmission, got %+v and %+v", first, second)
	}
}

func TestServiceSubmitPublishFailure(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, 3)
	ctx := context.Background()

	_, err := service.Submit(ctx, SubmitParams{
		ID:       "p-1",
		Target:   "0x00000000000000000000000000000000000000aa",
		ValueWei: "100",
	})
	if xerrors.CodeOf(err) != CodePaymentPublish {
		t.Fatalf("expected publish failure, got %v", err)
	}
	request, getErr := store.Get(ctx, "p-1")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if request.Status != StatusFailed || request.ErrorCode != string(CodePaymentPublish) {
		t.Fatalf("publish failure must be recorded as terminal, got %+v", request)
	}
}
