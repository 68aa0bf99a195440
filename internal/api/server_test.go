package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/auth"
	"SennaVault/internal/wallet"
)

type recordingTransferer struct {
	calls int
}

func (r *recordingTransferer) Transfer(_ context.Context, _ common.Address, _ *big.Int, _ []byte) error {
	r.calls++
	return nil
}

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	payee  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *recordingTransferer) {
	t.Helper()
	transferer := &recordingTransferer{}
	engine, err := wallet.New(wallet.Config{
		Owners:     []common.Address{ownerA, ownerB},
		Threshold:  2,
		DailyLimit: big.NewInt(1_000_000),
		PerTxLimit: big.NewInt(100_000),
	}, transferer)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return NewServer(":0", engine, opts...), transferer
}

func doJSON(t *testing.T, handler http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set("X-Acting-Address", actor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	server, transferer := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", ownerA.Hex(),
		`{"target":"`+payee.Hex()+`","value_wei":"500"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status: got %d want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var submitted wallet.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.ID != 1 || submitted.Confirmations != 1 {
		t.Fatalf("unexpected transaction: %+v", submitted)
	}

	// 第二个所有者确认后达到法定数并执行。
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/1/confirm", ownerB.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var confirmed wallet.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &confirmed); err != nil {
		t.Fatalf("decode confirm response: %v", err)
	}
	if !confirmed.Executed {
		t.Fatalf("expected executed transaction, got %+v", confirmed)
	}
	if transferer.calls != 1 {
		t.Fatalf("expected one transfer, got %d", transferer.calls)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?limit=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	var listed []wallet.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(listed))
	}
}

func TestTransactionDetailErrors(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	t.Run("missing id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/transactions/", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/transactions/42", "", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("actor required for confirm", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions/1/confirm", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("non owner rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", payee.Hex(),
			`{"target":"`+payee.Hex()+`","value_wei":"1"}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected status %d, got %d body=%s", http.StatusForbidden, rec.Code, rec.Body.String())
		}
		var envelope struct {
			Error errorBody `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode error envelope: %v", err)
		}
		if envelope.Error.Code != string(wallet.CodeUnauthorized) {
			t.Fatalf("unexpected error code %q", envelope.Error.Code)
		}
	})
}

func TestLimitExceededMapsToUnprocessable(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", ownerA.Hex(),
		`{"target":"`+payee.Hex()+`","value_wei":"200000"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	}
}

func TestSettingsAndOwnersEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/settings", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settings status: got %d", rec.Code)
	}
	var view settingsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if view.Threshold != 2 || len(view.Owners) != 2 {
		t.Fatalf("unexpected settings view: %+v", view)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/settings", ownerA.Hex(),
		`{"daily_limit":"2000000","per_tx_limit":"50000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update settings status: got %d body=%s", rec.Code, rec.Body.String())
	}

	newOwner := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/owners", ownerA.Hex(),
		`{"owner":"`+newOwner.Hex()+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add owner status: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/owners/"+newOwner.Hex(), ownerA.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove owner status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestKeyringGuardsEndpoints(t *testing.T) {
	authSvc, err := auth.NewService(auth.Config{
		Mode: auth.ModeKeyring,
		Credentials: []auth.Credential{
			{
				Name:         "owner-a",
				Key:          "owner-a-key",
				Address:      ownerA.Hex(),
				Capabilities: []string{auth.CapabilityRead, auth.CapabilitySubmit},
			},
			{
				Name:         "viewer",
				Key:          "viewer-key",
				Address:      payee.Hex(),
				Capabilities: []string{auth.CapabilityRead},
			},
		},
	})
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	server, _ := newTestServer(t, WithAuth(authSvc))
	handler := server.Handler()

	// 无密钥被拒。
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/transactions", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	// 只读密钥不能提交。
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions",
		strings.NewReader(`{"target":"`+payee.Hex()+`","value_wei":"1"}`))
	req.Header.Set(auth.HeaderAPIKey, "viewer-key")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, recorder.Code)
	}

	// 主体地址作为提交者生效。
	req = httptest.NewRequest(http.MethodPost, "/api/v1/transactions",
		strings.NewReader(`{"target":"`+payee.Hex()+`","value_wei":"5"}`))
	req.Header.Set(auth.HeaderAPIKey, "owner-a-key")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}
	var submitted wallet.Transaction
	if err := json.Unmarshal(recorder.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.Submitter != ownerA {
		t.Fatalf("expected submitter %s, got %s", ownerA.Hex(), submitted.Submitter.Hex())
	}
}
