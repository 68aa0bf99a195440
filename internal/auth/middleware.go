package auth

import (
	"net/http"
	"time"

	loggerpkg "SennaVault/pkg/logger"
)

// MiddlewareConfig 配置鉴权中间件的行为。
type MiddlewareConfig struct {
	// RequiredCapabilities 定义每个 HTTP 方法所需的能力列表。"*" 键适用于所有方法。
	RequiredCapabilities map[string][]string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
}

// Middleware 返回一个 HTTP 中间件，用于处理鉴权与审计。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// 返回实际的中间件处理函数。
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil || s.mode == ModeDisabled {
				next.ServeHTTP(w, r)
				return
			}
			// 认证请求。
			principal, err := s.AuthenticateRequest(r.Context(), r)
			if err != nil {
				status := http.StatusUnauthorized
				switch err {
				case ErrKeyRevoked, ErrPermissionDenied:
					status = http.StatusForbidden
				}
				http.Error(w, http.StatusText(status), status)
				logger := s.audit
				if logger == nil {
					logger = loggerpkg.Audit()
				}
				logger.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			// 授权请求。
			capabilities := cfg.RequiredCapabilities[r.Method]
			if len(capabilities) == 0 {
				capabilities = cfg.RequiredCapabilities["*"]
			}
			if len(capabilities) > 0 {
				if err := principal.Authorize(capabilities...); err != nil {
					status := http.StatusForbidden
					http.Error(w, http.StatusText(status), status)
					logger := s.audit
					if logger == nil {
						logger = loggerpkg.Audit()
					}
					logger.Warn("capability_denied",
						"path", r.URL.Path,
						"method", r.Method,
						"status", status,
						"error", err.Error(),
						"principal", principal.Name,
					)
					return
				}
			}
			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(aw, r.WithContext(ctx))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			logger := s.audit
			if logger == nil {
				logger = loggerpkg.Audit()
			}
			logger.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"principal", principal.Name,
				"address", principal.Address.Hex(),
			)
		})
	}
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
