package autopay

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/observability/alerting"
	"SennaVault/pkg/logger"
)

// Payer 定义了处理器所需的金库直通通道能力。
type Payer interface {
	ExecuteAutomated(ctx context.Context, caller, target common.Address, value *big.Int, payload []byte) (bool, error)
}

// Processor 负责从队列消费支付请求并通过自动化代理付款。
type Processor struct {
	payer       Payer
	agent       common.Address
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。agent 是金库配置的自动化代理地址，
// 所有直通支付都以该身份发起。
func NewProcessor(payer Payer, agent common.Address, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		payer:       payer,
		agent:       agent,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动支付处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置支付消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, paymentID string) error {
	if p.store == nil || p.payer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	request, err := p.store.Claim(ctx, paymentID)
	if err != nil {
		if stdErrors.Is(err, ErrPaymentNotFound) || stdErrors.Is(err, ErrPaymentCompleted) || stdErrors.Is(err, ErrPaymentExhausted) {
			p.logDebug("跳过支付请求", slog.String("payment_id", paymentID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取支付请求失败", slog.Any("error", err), slog.String("payment_id", paymentID))
		p.emitAlert(ctx, &Request{ID: paymentID}, CodePaymentProcessing, err, "claim")
		return err
	}

	target, err := request.TargetAddress()
	if err == nil {
		var value *big.Int
		if value, err = request.Value(); err == nil {
			return p.execute(ctx, request, target, value)
		}
	}
	// 存储里的非法记录没有重试的意义，直接终止。
	if storeErr := p.store.MarkFailed(ctx, request.ID, CodePaymentValidation, err.Error(), true); storeErr != nil {
		logger.L().Error("标记非法支付请求出错", slog.Any("error", storeErr), slog.String("payment_id", request.ID))
		return storeErr
	}
	p.emitAlert(ctx, request, CodePaymentValidation, err, "validate")
	return nil
}

func (p *Processor) execute(ctx context.Context, request *Request, target common.Address, value *big.Int) error {
	delivered, execErr := p.payer.ExecuteAutomated(ctx, p.agent, target, value, nil)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, request, execErr)
	}
	if !delivered {
		// 直通通道用布尔值表达链上转账失败，这里视为终止性失败。
		if storeErr := p.store.MarkFailed(ctx, request.ID, CodePaymentRejected, "transfer declined by chain", true); storeErr != nil {
			logger.L().Error("标记支付拒绝状态出错", slog.Any("error", storeErr), slog.String("payment_id", request.ID))
			return storeErr
		}
		logger.Audit().Warn("自动支付被拒绝",
			slog.String("payment_id", request.ID),
			slog.String("target", request.Target),
			slog.String("value_wei", request.ValueWei),
		)
		p.emitAlert(ctx, request, CodePaymentRejected, nil, "rejected")
		return nil
	}

	result := PaymentResult{Delivered: true}
	if err := p.store.MarkSucceeded(ctx, request.ID, result); err != nil {
		logger.L().Error("标记支付成功状态失败", slog.Any("error", err), slog.String("payment_id", request.ID))
		if storeErr := p.store.MarkFailed(ctx, request.ID, CodePaymentProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("payment_id", request.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, request.ID); pubErr != nil {
			return xerrors.Wrap(CodePaymentPublish, pubErr, fmt.Sprintf("支付 %s 在标记成功失败后重投失败", request.ID))
		}
		return nil
	}
	logger.Audit().Info("自动支付完成",
		slog.String("payment_id", request.ID),
		slog.String("target", request.Target),
		slog.String("value_wei", request.ValueWei),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, request *Request, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodePaymentProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := request.Attempts >= request.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, request.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记支付失败状态出错", slog.Any("error", storeErr), slog.String("payment_id", request.ID))
		return storeErr
	}
	logger.Audit().Warn("自动支付失败",
		slog.String("payment_id", request.ID),
		slog.String("target", request.Target),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", request.Attempts),
		slog.Int("max_retries", request.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	}
	p.emitAlert(ctx, request, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, request.ID); pubErr != nil {
			return xerrors.Wrap(CodePaymentPublish, pubErr, fmt.Sprintf("支付 %s 重投失败", request.ID))
		}
		p.logDebug("支付已重新排队", slog.String("payment_id", request.ID), slog.Int("attempts", request.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, request *Request, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || request == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert {
		return
	}
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage":  stage,
		"target": request.Target,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		PaymentID:  request.ID,
		Attempts:   request.Attempts,
		MaxRetries: request.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("payment_id", request.ID),
			slog.String("stage", stage),
		)
	}
}
