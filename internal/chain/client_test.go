package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "SennaVault/internal/errors"
)

type fakeBackend struct {
	chainID    *big.Int
	nonce      uint64
	gasPrice   *big.Int
	sent       []*coretypes.Transaction
	sendErr    error
	receipt    *coretypes.Receipt
	receiptErr error
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }
func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return 1234, nil
}
func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeBackend) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	return 50_000, nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func newTestClient(t *testing.T, eth *fakeBackend) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Client{
		name:           "testnet",
		eth:            eth,
		signerKey:      key,
		signerAddr:     crypto.PubkeyToAddress(key.PublicKey),
		receiptTimeout: time.Second,
		pollInterval:   time.Millisecond,
	}
}

func TestTransferSignsAndBroadcasts(t *testing.T) {
	eth := &fakeBackend{
		chainID:  big.NewInt(1337),
		nonce:    7,
		gasPrice: big.NewInt(100),
		receipt:  &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful},
	}
	client := newTestClient(t, eth)

	err := client.Transfer(context.Background(), common.HexToAddress("0x99"), big.NewInt(5), nil)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(eth.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(eth.sent))
	}
	tx := eth.sent[0]
	if tx.Nonce() != 7 {
		t.Fatalf("expected pending nonce 7, got %d", tx.Nonce())
	}
	if tx.Gas() != 21_000 {
		t.Fatalf("plain value transfer must use the intrinsic gas limit, got %d", tx.Gas())
	}
	sender, err := coretypes.Sender(coretypes.LatestSignerForChainID(eth.chainID), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != client.signerAddr {
		t.Fatalf("expected signature by %s, got %s", client.signerAddr.Hex(), sender.Hex())
	}
}

func TestTransferEstimatesGasForPayload(t *testing.T) {
	eth := &fakeBackend{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(100),
		receipt:  &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful},
	}
	client := newTestClient(t, eth)

	err := client.Transfer(context.Background(), common.HexToAddress("0x99"), big.NewInt(5), []byte{0x01})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := eth.sent[0].Gas(); got != 50_000 {
		t.Fatalf("expected estimated gas limit, got %d", got)
	}
}

func TestTransferRevertedReceiptIsAnError(t *testing.T) {
	eth := &fakeBackend{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(100),
		receipt:  &coretypes.Receipt{Status: coretypes.ReceiptStatusFailed},
	}
	client := newTestClient(t, eth)

	err := client.Transfer(context.Background(), common.HexToAddress("0x99"), big.NewInt(5), nil)
	if xerrors.CodeOf(err) != xerrors.CodeExecutorFailure {
		t.Fatalf("expected executor failure on revert, got %v", err)
	}
}

func TestTransferReceiptTimeout(t *testing.T) {
	eth := &fakeBackend{
		chainID:    big.NewInt(1337),
		gasPrice:   big.NewInt(100),
		receiptErr: errors.New("not found"),
	}
	client := newTestClient(t, eth)
	client.receiptTimeout = 10 * time.Millisecond

	err := client.Transfer(context.Background(), common.HexToAddress("0x99"), big.NewInt(5), nil)
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout waiting for receipt, got %v", err)
	}
}

func TestTransferWithoutSignerKey(t *testing.T) {
	client := &Client{eth: &fakeBackend{chainID: big.NewInt(1)}}
	err := client.Transfer(context.Background(), common.HexToAddress("0x99"), big.NewInt(1), nil)
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected missing-signer rejection, got %v", err)
	}
}
