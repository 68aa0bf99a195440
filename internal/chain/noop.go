package chain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/pkg/logger"
)

// NoopTransferer 只记录日志不上链，用于演练模式与本地联调。
type NoopTransferer struct {
	log *slog.Logger
}

// NewNoopTransferer 构建演练模式的转账器。
func NewNoopTransferer() *NoopTransferer {
	return &NoopTransferer{log: logger.Named("noop-transferer")}
}

// Transfer 记录请求并立即返回成功。
func (n *NoopTransferer) Transfer(_ context.Context, target common.Address, value *big.Int, payload []byte) error {
	n.log.Info("dry-run transfer",
		slog.String("target", target.Hex()),
		slog.String("value_wei", value.String()),
		slog.Int("payload_bytes", len(payload)),
	)
	return nil
}
