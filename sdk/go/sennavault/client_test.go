package sennavault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitTransactionSendsAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/transactions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "secret-key" {
			t.Fatalf("expected api key header, got %q", got)
		}
		var submission TransactionSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		if submission.Target != "0x00000000000000000000000000000000000000aa" {
			t.Fatalf("unexpected target: %s", submission.Target)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            1,
			"submitter":     "0x00000000000000000000000000000000000000a1",
			"target":        submission.Target,
			"value":         12345,
			"executed":      false,
			"confirmations": 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	client.SetAPIKey("secret-key")

	tx, err := client.SubmitTransaction(context.Background(), TransactionSubmission{
		Target:   "0x00000000000000000000000000000000000000aa",
		ValueWei: "12345",
	})
	if err != nil {
		t.Fatalf("submit transaction: %v", err)
	}
	if tx.ID != 1 || tx.Confirmations != 1 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.Value.String() != "12345" {
		t.Fatalf("unexpected value: %s", tx.Value)
	}
}

func TestGetTransactionBuildsPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions/42" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "executed": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	tx, err := client.GetTransaction(context.Background(), 42)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.ID != 42 || !tx.Executed {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestErrorEnvelopeDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"WALLET_UNAUTHORIZED","message":"caller is not an owner"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.ConfirmTransaction(context.Background(), 7)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Code != "WALLET_UNAUTHORIZED" {
		t.Fatalf("unexpected code: %s", apiErr.Code)
	}
	if apiErr.Message != "caller is not an owner" {
		t.Fatalf("unexpected message: %s", apiErr.Message)
	}
}

func TestFlatErrorPayloadFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	_, err := client.GetPayment(context.Background(), "pay-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestSubmitPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/autopay" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "pay-1",
			"status": "pending",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	payment, err := client.SubmitPayment(context.Background(), PaymentSubmission{
		Target:   "0x00000000000000000000000000000000000000aa",
		ValueWei: "1000",
	})
	if err != nil {
		t.Fatalf("submit payment: %v", err)
	}
	if payment.ID != "pay-1" || payment.Status != "pending" {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}
