package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/wallet"
)

// Config describes how to reach the chain and sign outbound transfers.
type Config struct {
	Name           string
	RPCURL         string
	WSURL          string
	SignerKeyHex   string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Snapshot represents summarized network metadata for reporting endpoints.
type Snapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
}

// backend is the subset of ethclient the transfer path relies on. Tests
// substitute a fake implementation.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// Client implements outbound transfers and chain queries against an EVM node.
type Client struct {
	name        string
	rpcClient   *gethrpc.Client
	eth         backend
	eventClient logSubscriber

	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address

	receiptTimeout time.Duration
	pollInterval   time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured endpoints and parses the signer key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "chain rpc url is required")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "dial chain rpc")
	}
	eth := ethclient.NewClient(rpcClient)

	eventClient := logSubscriber(eth)
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			eventClient = ethclient.NewClient(wsRPC)
		}
	}

	c := &Client{
		name:           cfg.Name,
		rpcClient:      rpcClient,
		eth:            eth,
		eventClient:    eventClient,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = 2 * time.Minute
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}

	if keyHex := strings.TrimSpace(cfg.SignerKeyHex); keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "parse signer key")
		}
		c.signerKey = key
		c.signerAddr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if ec, ok := c.eventClient.(*ethclient.Client); ok && any(ec) != any(c.eth) {
		ec.Close()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// SignerAddress returns the address the client signs transfers with.
func (c *Client) SignerAddress() common.Address {
	return c.signerAddr
}

// GasOracle returns a price cache backed by this client's node.
func (c *Client) GasOracle(ttl time.Duration) *GasOracle {
	return NewGasOracle(c.eth, ttl)
}

// WatchDeposits builds a deposit watcher on this client's log subscription,
// preferring the websocket endpoint when one was configured.
func (c *Client) WatchDeposits(vault common.Address, engine *wallet.Engine) *DepositWatcher {
	return NewDepositWatcher(c.eventClient, vault, engine)
}

// FetchSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return Snapshot{}, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "fetch block number")
	}
	return Snapshot{
		Name:        c.name,
		ChainID:     "0x" + chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
	}, nil
}

// BalanceOf returns the current balance of an address in wei.
func (c *Client) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "fetch balance")
	}
	return balance, nil
}

// Transfer signs and broadcasts a value transfer, then waits for the receipt.
// A mined-but-reverted transaction is reported as an error so callers can
// roll back their own bookkeeping.
func (c *Client) Transfer(ctx context.Context, target common.Address, value *big.Int, payload []byte) error {
	if c.signerKey == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "no signer key configured")
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.signerAddr)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "fetch pending nonce")
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "fetch gas price")
	}

	gasLimit := uint64(21_000)
	if len(payload) > 0 {
		gasLimit, err = c.eth.EstimateGas(ctx, gethcore.CallMsg{
			From:  c.signerAddr,
			To:    &target,
			Value: value,
			Data:  payload,
		})
		if err != nil {
			return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "estimate gas")
		}
	}

	tx := coretypes.NewTransaction(nonce, target, value, gasLimit, gasPrice, payload)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), c.signerKey)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "sign transaction")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return xerrors.Wrap(xerrors.CodeExecutorFailure, err, "broadcast transaction")
	}
	return c.waitMined(ctx, signed.Hash())
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	deadline, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(deadline, hash)
		if err == nil {
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return xerrors.New(xerrors.CodeExecutorFailure, "transaction reverted on chain")
			}
			return nil
		}
		select {
		case <-deadline.Done():
			return xerrors.Wrap(xerrors.CodeTimeout, deadline.Err(), "wait for receipt")
		case <-ticker.C:
		}
	}
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "fetch chain id")
	}
	c.chainID = id
	return id, nil
}
