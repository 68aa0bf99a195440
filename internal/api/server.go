package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/auth"
	"SennaVault/internal/autopay"
	"SennaVault/internal/chain"
	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/observability/metrics"
	"SennaVault/internal/storage/mysql"
	"SennaVault/internal/wallet"
)

// ChainInfo 提供链状态快照，由链客户端实现。
type ChainInfo interface {
	FetchSnapshot(ctx context.Context) (chain.Snapshot, error)
}

// GasQuoter 提供多档位燃气报价。
type GasQuoter interface {
	Quote(ctx context.Context) (chain.GasQuote, error)
}

// Server 负责暴露 REST 接口，供外部驱动金库执行。
type Server struct {
	addr     string
	engine   *wallet.Engine
	payments *autopay.Service
	archive  mysql.EventArchive
	chain    ChainInfo
	gas      GasQuoter
	auth     *auth.Service
}

// Option 配置可选的服务依赖。
type Option func(*Server)

// WithPayments 挂载自动支付服务。
func WithPayments(payments *autopay.Service) Option {
	return func(s *Server) { s.payments = payments }
}

// WithEventArchive 挂载事件归档查询。
func WithEventArchive(archive mysql.EventArchive) Option {
	return func(s *Server) { s.archive = archive }
}

// WithChainInfo 挂载链状态快照来源。
func WithChainInfo(info ChainInfo) Option {
	return func(s *Server) { s.chain = info }
}

// WithGasQuoter 挂载燃气报价来源。
func WithGasQuoter(quoter GasQuoter) Option {
	return func(s *Server) { s.gas = quoter }
}

// WithAuth 挂载鉴权服务。未挂载时所有请求直接放行。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, engine *wallet.Engine, opts ...Option) *Server {
	server := &Server{addr: addr, engine: engine}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// Handler 组装全部路由，测试与 Start 共用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/v1/transactions", s.protect("transactions", auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet:  {auth.CapabilityRead},
			http.MethodPost: {auth.CapabilitySubmit},
		},
		AuditEvent: "vault_transactions",
	}, http.HandlerFunc(s.handleTransactions)))
	mux.Handle("/api/v1/transactions/", s.protect("transaction_detail", auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet: {auth.CapabilityRead},
		},
		AuditEvent: "vault_transaction_detail",
	}, http.HandlerFunc(s.handleTransactionDetail)))

	mux.Handle("/api/v1/settings", s.protect("settings", auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet: {auth.CapabilityRead},
			http.MethodPut: {auth.CapabilityAdmin},
		},
		AuditEvent: "vault_settings",
	}, http.HandlerFunc(s.handleSettings)))

	ownersConfig := auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet:    {auth.CapabilityRead},
			http.MethodPost:   {auth.CapabilityAdmin},
			http.MethodDelete: {auth.CapabilityAdmin},
		},
		AuditEvent: "vault_owners",
	}
	mux.Handle("/api/v1/owners", s.protect("owners", ownersConfig, http.HandlerFunc(s.handleOwners)))
	mux.Handle("/api/v1/owners/", s.protect("owner_detail", ownersConfig, http.HandlerFunc(s.handleOwnerDetail)))

	recoveryConfig := auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet: {auth.CapabilityRead},
			"*":            {auth.CapabilityRecovery},
		},
		AuditEvent: "vault_recovery",
	}
	mux.Handle("/api/v1/recovery", s.protect("recovery", recoveryConfig, http.HandlerFunc(s.handleRecovery)))
	mux.Handle("/api/v1/recovery/complete", s.protect("recovery_complete", recoveryConfig, http.HandlerFunc(s.handleRecoveryComplete)))

	autopayConfig := auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{
			http.MethodGet:  {auth.CapabilityRead},
			http.MethodPost: {auth.CapabilityAutopay},
		},
		AuditEvent: "vault_autopay",
	}
	mux.Handle("/api/v1/autopay", s.protect("autopay", autopayConfig, http.HandlerFunc(s.handleAutopay)))
	mux.Handle("/api/v1/autopay/stats", s.protect("autopay_stats", autopayConfig, http.HandlerFunc(s.handleAutopayStats)))
	mux.Handle("/api/v1/autopay/", s.protect("autopay_detail", autopayConfig, http.HandlerFunc(s.handleAutopayDetail)))

	readOnly := auth.MiddlewareConfig{
		RequiredCapabilities: map[string][]string{"*": {auth.CapabilityRead}},
	}
	mux.Handle("/api/v1/events", s.protect("events", readOnly, http.HandlerFunc(s.handleEvents)))
	mux.Handle("/api/v1/chain", s.protect("chain", readOnly, http.HandlerFunc(s.handleChainSnapshot)))
	mux.Handle("/api/v1/chain/gas", s.protect("chain_gas", readOnly, http.HandlerFunc(s.handleChainGas)))

	return mux
}

// protect 先套鉴权中间件，再套指标采集。
func (s *Server) protect(name string, cfg auth.MiddlewareConfig, handler http.Handler) http.Handler {
	if s.auth != nil {
		handler = s.auth.Middleware(cfg)(handler)
	}
	return instrument(name, handler)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actingAddress 解析本次调用的链上身份：优先取鉴权主体的地址，
// 其次允许未启用鉴权时通过请求头指定。
func actingAddress(r *http.Request) (common.Address, error) {
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		return principal.Address, nil
	}
	raw := r.Header.Get("X-Acting-Address")
	if raw == "" {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "acting address required")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "invalid acting address")
	}
	return common.HexToAddress(raw), nil
}

// requireCapability 在路由级配置覆盖不到的动作上做能力检查。
// 未启用鉴权时直接放行。
func requireCapability(r *http.Request, capability string) error {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		return nil
	}
	return principal.Authorize(capability)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// instrument 包装处理器以采集请求指标。
func instrument(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
