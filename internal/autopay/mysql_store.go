package autopay

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "SennaVault/internal/errors"
)

// MySQLStore 使用 MySQL 记录支付状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS autopay_requests (
        id VARCHAR(64) PRIMARY KEY,
        target VARCHAR(64) NOT NULL,
        value_wei VARCHAR(96) NOT NULL,
        memo TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_delivered TINYINT(1) NOT NULL DEFAULT 0,
        result_observation TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_autopay_status (status),
        INDEX idx_autopay_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 autopay_requests 表失败")
	}
	return nil
}

// Create 插入新的支付记录。
func (s *MySQLStore) Create(ctx context.Context, request *Request) error {
	if request == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if strings.TrimSpace(request.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "支付请求 ID 不能为空")
	}

	now := time.Now().Unix()
	request.CreatedAt = now
	request.UpdatedAt = now

	const stmt = `INSERT INTO autopay_requests
        (id, target, value_wei, memo, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		request.ID,
		request.Target,
		request.ValueWei,
		request.Memo,
		request.Status,
		request.Attempts,
		request.MaxRetries,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrPaymentConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入支付请求失败")
	}
	return nil
}

// Get 查询指定支付请求。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Request, error) {
	const stmt = `SELECT id, target, value_wei, memo, status, attempts, max_retries, last_error, error_code,
        result_delivered, result_observation, created_at, updated_at
        FROM autopay_requests WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	request, err := scanRequest(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询支付请求失败")
	}
	return request, nil
}

// Claim 将支付请求标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Request, error) {
	const updateStmt = `UPDATE autopay_requests SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新支付状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		request, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch request.Status {
		case StatusSucceeded:
			return request, ErrPaymentCompleted
		case StatusRunning:
			return request, ErrPaymentConflict
		default:
			if request.Attempts >= request.MaxRetries {
				return request, ErrPaymentExhausted
			}
			return request, ErrPaymentConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将支付请求标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result PaymentResult) error {
	const stmt = `UPDATE autopay_requests SET status = ?, result_delivered = ?, result_observation = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		result.Delivered,
		result.Observation,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记支付成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkFailed 将支付请求标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE autopay_requests SET status = ?, last_error = ?, error_code = ?, updated_at = ?,
        attempts = CASE WHEN ? THEN max_retries ELSE attempts END WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		terminal,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记支付失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// List 返回最近的支付请求。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Request, error) {
	opts.applyDefaults()

	query := `SELECT id, target, value_wei, memo, status, attempts, max_retries, last_error, error_code,
        result_delivered, result_observation, created_at, updated_at FROM autopay_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询支付列表失败")
	}
	defer rows.Close()

	requests := make([]*Request, 0, opts.Limit)
	for rows.Next() {
		request, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析支付记录失败")
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历支付记录失败")
	}
	return requests, nil
}

// Stats 返回符合过滤条件的支付聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (PaymentStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM autopay_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats PaymentStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return PaymentStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询支付统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRequest(scan func(dest ...any) error) (*Request, error) {
	var request Request
	var result PaymentResult
	var memo, lastError, observation sql.NullString

	if err := scan(
		&request.ID,
		&request.Target,
		&request.ValueWei,
		&memo,
		&request.Status,
		&request.Attempts,
		&request.MaxRetries,
		&lastError,
		&request.ErrorCode,
		&result.Delivered,
		&observation,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		return nil, err
	}
	request.Memo = memo.String
	request.LastError = lastError.String
	result.Observation = observation.String
	if request.Status == StatusSucceeded {
		request.Result = &result
	}
	return &request, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR target LIKE ? OR memo LIKE ? OR last_error LIKE ? OR error_code LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
