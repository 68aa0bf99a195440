package autopay

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "SennaVault/internal/errors"
	"SennaVault/pkg/logger"
)

// SubmitParams 描述一次支付提交。
type SubmitParams struct {
	ID       string `json:"id,omitempty"`
	Target   string `json:"target"`
	ValueWei string `json:"value_wei"`
	Memo     string `json:"memo,omitempty"`
}

// Service 负责支付请求的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造支付服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的支付请求并推送到队列。带 ID 的重复提交是幂等的：
// 已存在的请求原样返回。
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Request, error) {
	if !common.IsHexAddress(strings.TrimSpace(params.Target)) {
		return nil, xerrors.New(CodePaymentValidation, "收款地址不合法")
	}
	if _, err := (&Request{ValueWei: params.ValueWei}).Value(); err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "支付服务未初始化")
	}

	paymentID := strings.TrimSpace(params.ID)
	if paymentID != "" {
		request, err := s.store.Get(ctx, paymentID)
		if err == nil {
			return request, nil
		}
		if !stdErrors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
	} else {
		paymentID = uuid.NewString()
	}

	request := &Request{
		ID:         paymentID,
		Target:     common.HexToAddress(params.Target).Hex(),
		ValueWei:   strings.TrimSpace(params.ValueWei),
		Memo:       params.Memo,
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, request); err != nil {
		if stdErrors.Is(err, ErrPaymentConflict) {
			existing, getErr := s.store.Get(ctx, paymentID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrPaymentNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, paymentID); err != nil {
		logger.L().Error("支付入队失败", slog.Any("error", err), slog.String("payment_id", paymentID))
		wrapped := xerrors.Wrap(CodePaymentPublish, err, "发布支付请求到队列失败")
		_ = s.store.MarkFailed(ctx, paymentID, CodePaymentPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("支付入队成功",
		slog.String("payment_id", paymentID),
		slog.String("target", request.Target),
		slog.String("value_wei", request.ValueWei),
		slog.Int("max_retries", request.MaxRetries),
	)
	return request, nil
}

// Get 返回指定支付请求的状态。
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "支付存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的支付列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "支付存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的支付统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (PaymentStats, error) {
	if s.store == nil {
		return PaymentStats{}, xerrors.New(xerrors.CodeInitializationFailure, "支付存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询支付状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Request, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		request, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if request.Status == StatusSucceeded || request.Status == StatusFailed {
			return request, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
