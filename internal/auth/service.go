package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"SennaVault/pkg/logger"
)

// HeaderAPIKey 是携带 API 密钥的请求头名称。
const HeaderAPIKey = "X-Api-Key"

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode    Mode
	keyring *Keyring
	audit   *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(string(cfg.Mode)))
	svc := &Service{
		mode:  mode,
		audit: logger.Audit(),
	}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeKeyring:
		if len(cfg.Credentials) == 0 {
			return nil, errors.New("keyring mode requires at least one credential")
		}
		ring, err := NewKeyring(cfg.Credentials)
		if err != nil {
			return nil, err
		}
		svc.keyring = ring
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// AuthenticateRequest 验证传入请求的 API 密钥，并返回相应的主体信息。
// 同时兼容 Authorization: Bearer <key> 形式。
func (s *Service) AuthenticateRequest(_ context.Context, r *http.Request) (*Principal, error) {
	if s == nil || s.mode == ModeDisabled {
		return nil, ErrDisabled
	}
	key := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if key == "" {
		parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			key = strings.TrimSpace(parts[1])
		}
	}
	if key == "" {
		return nil, ErrMissingKey
	}
	if s.keyring == nil {
		return nil, errors.New("keyring not configured")
	}
	return s.keyring.Resolve(key)
}
