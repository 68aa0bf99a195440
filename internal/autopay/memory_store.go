package autopay

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "SennaVault/internal/errors"
)

// MemoryStore 以内存方式保存支付状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Request
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Request)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, request *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if request == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if request.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "支付请求 ID 不能为空")
	}
	if _, ok := m.payments[request.ID]; ok {
		return ErrPaymentConflict
	}
	now := time.Now().Unix()
	if request.CreatedAt == 0 {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	m.payments[request.ID] = cloneRequest(request)
	return nil
}

// Get 返回支付请求。
func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	request, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return cloneRequest(request), nil
}

// Claim 将支付请求标记为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	switch request.Status {
	case StatusSucceeded:
		return cloneRequest(request), ErrPaymentCompleted
	case StatusRunning:
		return cloneRequest(request), ErrPaymentConflict
	}
	if request.Attempts >= request.MaxRetries {
		return cloneRequest(request), ErrPaymentExhausted
	}
	request.Status = StatusRunning
	request.Attempts++
	request.LastError = ""
	request.ErrorCode = ""
	request.UpdatedAt = time.Now().Unix()
	return cloneRequest(request), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result PaymentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	request.Status = StatusSucceeded
	request.Result = &result
	request.LastError = ""
	request.ErrorCode = ""
	request.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记支付请求失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	request.Status = StatusFailed
	request.LastError = lastError
	request.ErrorCode = string(code)
	request.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的支付请求。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Request, 0, len(m.payments))
	for _, request := range m.payments {
		if !matchesListFilters(request, opts) {
			continue
		}
		results = append(results, cloneRequest(request))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].ID > results[j].ID
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Request{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的支付数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (PaymentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := PaymentStats{}
	for _, request := range m.payments {
		if !matchesListFilters(request, opts) {
			continue
		}
		stats.Total++
		switch request.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if request.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = request.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (request.UpdatedAt != 0 && request.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = request.UpdatedAt
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneRequest(request *Request) *Request {
	clone := *request
	if request.Result != nil {
		resultCopy := *request.Result
		clone.Result = &resultCopy
	}
	return &clone
}

func matchesListFilters(request *Request, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if request.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && request.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && request.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.Query != "" {
		needle := strings.ToLower(opts.Query)
		haystack := strings.ToLower(strings.Join([]string{
			request.ID, request.Target, request.Memo, request.LastError, request.ErrorCode,
		}, "\n"))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
