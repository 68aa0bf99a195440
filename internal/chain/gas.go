package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	xerrors "SennaVault/internal/errors"
)

// GasQuote 是一次分档报价：以节点建议价为基准，按固定比例给出
// 慢速、标准、快速与极速四档。
type GasQuote struct {
	Slow    *big.Int  `json:"slow_wei"`
	Current *big.Int  `json:"current_wei"`
	Fast    *big.Int  `json:"fast_wei"`
	Rapid   *big.Int  `json:"rapid_wei"`
	At      time.Time `json:"at"`
}

// gasSuggester 抽象节点侧的建议价查询，便于测试替换。
type gasSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle 缓存分档报价，避免每次出金都打一次 RPC。
type GasOracle struct {
	suggester gasSuggester
	ttl       time.Duration
	clock     func() time.Time

	mu     sync.Mutex
	cached GasQuote
}

// NewGasOracle 构建报价缓存，ttl 非正时取 60 秒。
func NewGasOracle(suggester gasSuggester, ttl time.Duration) *GasOracle {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &GasOracle{suggester: suggester, ttl: ttl, clock: time.Now}
}

// Quote 返回当前报价，缓存未过期时直接复用。
func (o *GasOracle) Quote(ctx context.Context) (GasQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock()
	if o.cached.Current != nil && now.Sub(o.cached.At) < o.ttl {
		return o.cached, nil
	}

	base, err := o.suggester.SuggestGasPrice(ctx)
	if err != nil {
		return GasQuote{}, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "suggest gas price")
	}
	o.cached = GasQuote{
		Slow:    scaleGas(base, 80),
		Current: new(big.Int).Set(base),
		Fast:    scaleGas(base, 120),
		Rapid:   scaleGas(base, 150),
		At:      now,
	}
	return o.cached, nil
}

func scaleGas(base *big.Int, percent int64) *big.Int {
	scaled := new(big.Int).Mul(base, big.NewInt(percent))
	return scaled.Div(scaled, big.NewInt(100))
}
