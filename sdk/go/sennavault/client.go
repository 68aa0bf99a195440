package sennavault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the SennaVault REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// TransactionSubmission represents the payload required to propose a transfer.
// Value is a decimal wei string; Payload is 0x-prefixed hex call data.
type TransactionSubmission struct {
	Target   string `json:"target"`
	ValueWei string `json:"value_wei"`
	Payload  string `json:"payload,omitempty"`
}

// Transaction mirrors the server-side ledger entry. Value is the transfer
// amount in wei, carried as a JSON number of arbitrary precision.
type Transaction struct {
	ID            uint64      `json:"id"`
	Submitter     string      `json:"submitter"`
	Target        string      `json:"target"`
	Value         json.Number `json:"value"`
	Executed      bool        `json:"executed"`
	Confirmations int         `json:"confirmations"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
}

// PaymentSubmission represents the payload for an automated payment.
type PaymentSubmission struct {
	ID       string `json:"id,omitempty"`
	Target   string `json:"target"`
	ValueWei string `json:"value_wei"`
	Memo     string `json:"memo,omitempty"`
}

// Payment mirrors the server-side automated payment record.
type Payment struct {
	ID         string `json:"id"`
	Target     string `json:"target"`
	ValueWei   string `json:"value_wei"`
	Memo       string `json:"memo,omitempty"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("sennavault api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("sennavault api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the SennaVault API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SetAPIKey stores the API key sent with every request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the currently stored API key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// SubmitTransaction proposes a new transfer. The submitting owner is derived
// from the API key on the server side.
func (c *Client) SubmitTransaction(ctx context.Context, submission TransactionSubmission) (Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, "/api/v1/transactions", submission, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// GetTransaction fetches one ledger entry by identifier.
func (c *Client) GetTransaction(ctx context.Context, id uint64) (Transaction, error) {
	var tx Transaction
	if err := c.get(ctx, fmt.Sprintf("/api/v1/transactions/%d", id), &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ListTransactions returns the most recent ledger entries.
func (c *Client) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	endpoint := "/api/v1/transactions"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var txs []Transaction
	if err := c.get(ctx, endpoint, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// ConfirmTransaction records the caller's confirmation; the transfer executes
// automatically once quorum is reached.
func (c *Client) ConfirmTransaction(ctx context.Context, id uint64) (Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, fmt.Sprintf("/api/v1/transactions/%d/confirm", id), nil, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ExecuteTransaction retries execution of an already-confirmed transfer.
func (c *Client) ExecuteTransaction(ctx context.Context, id uint64) (Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, fmt.Sprintf("/api/v1/transactions/%d/execute", id), nil, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// SubmitPayment enqueues an automated payment.
func (c *Client) SubmitPayment(ctx context.Context, submission PaymentSubmission) (Payment, error) {
	var payment Payment
	if err := c.post(ctx, "/api/v1/autopay", submission, &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// GetPayment fetches one automated payment by identifier.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	var payment Payment
	if err := c.get(ctx, "/api/v1/autopay/"+url.PathEscape(id), &payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if key := c.APIKey(); key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
