package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventRecord 表示一条落库的金库事件。
type EventRecord struct {
	Kind          string `json:"kind"`
	Actor         string `json:"actor"`
	TxID          uint64 `json:"tx_id,omitempty"`
	Target        string `json:"target,omitempty"`
	ValueWei      string `json:"value_wei,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	Threshold     int    `json:"threshold,omitempty"`
	Memo          string `json:"memo,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// EventArchive 抽象事件归档的持久化接口。
type EventArchive interface {
	Save(ctx context.Context, record EventRecord) error
	ListLatest(ctx context.Context, limit int) ([]EventRecord, error)
}

// 内存归档最多保留的条目数。磁盘日志不受此限制。
const memoryArchiveCap = 512

// MemoryEventArchive 使用本地 JSON 日志文件模拟 MySQL 的效果，方便迭代开发。
type MemoryEventArchive struct {
	mu       sync.RWMutex
	dataFile string
	records  []EventRecord
}

// NewMemoryEventArchive 创建一个文件归档。
func NewMemoryEventArchive(dataDir string) (*MemoryEventArchive, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "vault_events.log")
	archive := &MemoryEventArchive{dataFile: path}
	if err := archive.loadFromDisk(); err != nil {
		return nil, err
	}
	return archive, nil
}

// Save 以追加写的方式记录事件。
func (m *MemoryEventArchive) Save(_ context.Context, record EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开事件日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化事件记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入事件日志失败: %w", err)
	}

	m.records = append([]EventRecord{record}, m.records...)
	if len(m.records) > memoryArchiveCap {
		m.records = m.records[:memoryArchiveCap]
	}
	return nil
}

// ListLatest 返回最近的事件记录，按时间倒序排列。
func (m *MemoryEventArchive) ListLatest(_ context.Context, limit int) ([]EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]EventRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *MemoryEventArchive) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取事件日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []EventRecord
	for scanner.Scan() {
		var record EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]EventRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析事件日志失败: %w", err)
	}

	if len(restored) > memoryArchiveCap {
		restored = restored[:memoryArchiveCap]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLEventArchive 使用真实的 MySQL 数据库归档事件。
type SQLEventArchive struct {
	db *sql.DB
}

// NewSQLEventArchive 创建连接池并执行内嵌迁移。
func NewSQLEventArchive(ctx context.Context, cfg Config) (*SQLEventArchive, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	archive := &SQLEventArchive{db: db}
	if err := archive.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return archive, nil
}

// Save 将事件记录写入 MySQL。
func (s *SQLEventArchive) Save(ctx context.Context, record EventRecord) error {
	const stmt = `INSERT INTO vault_events
        (kind, actor, tx_id, target, value_wei, confirmations, threshold, memo, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.Kind,
		record.Actor,
		record.TxID,
		record.Target,
		record.ValueWei,
		record.Confirmations,
		record.Threshold,
		record.Memo,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条事件记录。
func (s *SQLEventArchive) ListLatest(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, actor, tx_id, target, value_wei, confirmations, threshold, memo, created_at
        FROM vault_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询事件记录失败: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var record EventRecord
		var memo sql.NullString
		if err := rows.Scan(&record.Kind, &record.Actor, &record.TxID, &record.Target, &record.ValueWei, &record.Confirmations, &record.Threshold, &memo, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析事件记录失败: %w", err)
		}
		record.Memo = memo.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历事件记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLEventArchive) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
