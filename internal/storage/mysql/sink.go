package mysql

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"SennaVault/internal/wallet"
)

// ArchiveSink 把金库事件转成归档记录，作为引擎的事件下游挂载。
type ArchiveSink struct {
	archive EventArchive
}

// NewArchiveSink 构建归档下游。
func NewArchiveSink(archive EventArchive) *ArchiveSink {
	return &ArchiveSink{archive: archive}
}

// Emit 实现 wallet.Sink。
func (s *ArchiveSink) Emit(ctx context.Context, event wallet.Event) error {
	record := EventRecord{
		Kind:          string(event.Kind),
		Actor:         event.Actor.Hex(),
		TxID:          event.TxID,
		Confirmations: event.Confirmations,
		Threshold:     event.Threshold,
		Memo:          event.Memo,
		CreatedAt:     event.At.Unix(),
	}
	if event.Target != (common.Address{}) {
		record.Target = event.Target.Hex()
	}
	if event.Value != nil {
		record.ValueWei = event.Value.String()
	}
	return s.archive.Save(ctx, record)
}
