package mysql

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/wallet"
)

func TestMemoryEventArchivePersistsAcrossReloads(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	archive, err := NewMemoryEventArchive(dir)
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	for i := 0; i < 3; i++ {
		record := EventRecord{
			Kind:      "transaction_executed",
			Actor:     "0x01",
			TxID:      uint64(i + 1),
			CreatedAt: time.Now().Unix(),
		}
		if err := archive.Save(ctx, record); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	latest, err := archive.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(latest) != 2 || latest[0].TxID != 3 {
		t.Fatalf("expected newest first, got %+v", latest)
	}

	// 重新打开后记录仍在。
	reloaded, err := NewMemoryEventArchive(dir)
	if err != nil {
		t.Fatalf("reload archive: %v", err)
	}
	restored, err := reloaded.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list after reload: %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("expected 3 restored records, got %d", len(restored))
	}
}

func TestArchiveSinkMapsEvents(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewMemoryEventArchive(dir)
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	sink := NewArchiveSink(archive)
	ctx := context.Background()

	actor := common.BytesToAddress([]byte{0x01})
	target := common.BytesToAddress([]byte{0x99})
	event := wallet.Event{
		Kind:          wallet.KindTransactionExecuted,
		Actor:         actor,
		TxID:          7,
		Target:        target,
		Value:         big.NewInt(500),
		Confirmations: 2,
		Threshold:     2,
		At:            time.Unix(1_700_000_000, 0),
	}
	if err := sink.Emit(ctx, event); err != nil {
		t.Fatalf("emit: %v", err)
	}

	records, err := archive.ListLatest(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	record := records[0]
	if record.Kind != "transaction_executed" || record.TxID != 7 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Actor != actor.Hex() || record.Target != target.Hex() || record.ValueWei != "500" {
		t.Fatalf("unexpected mapping: %+v", record)
	}
	if record.CreatedAt != 1_700_000_000 {
		t.Fatalf("unexpected timestamp: %d", record.CreatedAt)
	}
}
