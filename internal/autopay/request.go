// Package autopay 实现小额自动支付流水线：HTTP 层收到的请求先落库，
// 再经消息队列分发给工作协程，由自动化代理走金库的直通通道付款。
package autopay

import (
	stdErrors "errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
)

// Status 表示支付请求在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// PaymentResult 保存一次支付执行的结果。
type PaymentResult struct {
	Delivered   bool   `json:"delivered"`
	Observation string `json:"observation,omitempty"`
}

// Request 描述一笔排队执行的自动支付。地址与金额以字符串形式保存,
// 与存储层的表示保持一致；解析校验发生在提交入口。
type Request struct {
	ID         string         `json:"id"`
	Target     string         `json:"target"`
	ValueWei   string         `json:"value_wei"`
	Memo       string         `json:"memo,omitempty"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *PaymentResult `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

var (
	// ErrPaymentNotFound 表示指定的支付请求不存在。
	ErrPaymentNotFound = xerrors.New(CodePaymentNotFound, "payment not found")
	// ErrPaymentConflict 表示支付请求在当前状态下无法进行所请求的操作。
	ErrPaymentConflict = xerrors.New(CodePaymentConflict, "payment conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrPaymentCompleted 表示支付请求已经成功完成。
	ErrPaymentCompleted = xerrors.New(CodePaymentCompleted, "payment already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrPaymentExhausted 表示支付请求的重试次数已经耗尽。
	ErrPaymentExhausted = xerrors.New(CodePaymentExhausted, "payment retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodePaymentNotFound   xerrors.Code = "AUTOPAY_NOT_FOUND"
	CodePaymentConflict   xerrors.Code = "AUTOPAY_CONFLICT"
	CodePaymentCompleted  xerrors.Code = "AUTOPAY_COMPLETED"
	CodePaymentExhausted  xerrors.Code = "AUTOPAY_RETRIES_EXHAUSTED"
	CodePaymentValidation xerrors.Code = "AUTOPAY_VALIDATION_FAILED"
	CodePaymentPublish    xerrors.Code = "AUTOPAY_PUBLISH_FAILED"
	CodePaymentProcessing xerrors.Code = "AUTOPAY_PROCESSING_FAILED"
	CodePaymentRejected   xerrors.Code = "AUTOPAY_REJECTED"
)

func init() {
	xerrors.Register(CodePaymentNotFound, xerrors.Attributes{
		Message:   "payment not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaymentConflict, xerrors.Attributes{
		Message:   "payment conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaymentCompleted, xerrors.Attributes{
		Message:   "payment already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaymentExhausted, xerrors.Attributes{
		Message:   "payment retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodePaymentValidation, xerrors.Attributes{
		Message:   "payment validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePaymentPublish, xerrors.Attributes{
		Message:   "failed to publish payment",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodePaymentProcessing, xerrors.Attributes{
		Message:   "payment execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodePaymentRejected, xerrors.Attributes{
		Message:   "payment rejected by vault",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// IsPaymentError 判断错误是否为统一支付错误。
func IsPaymentError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrPaymentNotFound) {
		return target == CodePaymentNotFound
	}
	if stdErrors.Is(err, ErrPaymentConflict) {
		return target == CodePaymentConflict
	}
	if stdErrors.Is(err, ErrPaymentCompleted) {
		return target == CodePaymentCompleted
	}
	if stdErrors.Is(err, ErrPaymentExhausted) {
		return target == CodePaymentExhausted
	}
	return false
}

// TargetAddress 解析收款地址。
func (r *Request) TargetAddress() (common.Address, error) {
	if !common.IsHexAddress(r.Target) {
		return common.Address{}, xerrors.New(CodePaymentValidation, "invalid target address")
	}
	return common.HexToAddress(r.Target), nil
}

// Value 解析支付金额。
func (r *Request) Value() (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(r.ValueWei), 10)
	if !ok || value.Sign() < 0 {
		return nil, xerrors.New(CodePaymentValidation, "invalid payment value")
	}
	return value, nil
}

// IsValidStatus 检查给定的支付状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
