// Package repository 数据库无关的业务逻辑存储层
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"memoria/internal/shared/storage"
	"memoria/internal/shared/storage/dbutil"
)

// Store 通用存储实现
// 实现了 storage.PersistentStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// ============================================================================
// 事务
// ============================================================================

// querier *sql.DB 与 *sql.Tx 的公共方法
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// q 返回当前上下文中的事务，没有事务时返回连接池
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction 在单个 SQL 事务中执行 fn，嵌套调用复用外层事务
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// 通用辅助
// ============================================================================

// exec 执行写语句并转换错误
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.q(ctx).ExecContext(ctx, s.rebind(query), args...)
	return res, s.wrapError(err)
}

// execAffect 执行写语句，未影响任何行时返回 ErrNotFound
func (s *Store) execAffect(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// wrapError 将数据库错误转换为领域错误
func (s *Store) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if s.dialect.IsUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	return err
}

// utc 统一以 UTC 存储时间，保证 SQLite 文本时间可按字典序排序
func utc(t time.Time) time.Time {
	return t.UTC()
}

// nullTime *time.Time → sql.NullTime
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// timePtr sql.NullTime → *time.Time
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// toJSON 序列化为 JSON 文本，nil 存为 NULL
func toJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NullableJSON 用于安全扫描可能为 NULL 的 JSON 字段
// database/sql 无法直接将 NULL scan 到 json.RawMessage，需要通过 *[]byte 中间变量
type NullableJSON struct {
	Data *[]byte
}

// Scan 实现 sql.Scanner
func (n *NullableJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Data = nil
	case []byte:
		b := append([]byte(nil), v...)
		n.Data = &b
	case string:
		b := []byte(v)
		n.Data = &b
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	return nil
}

// Decode 解码到 dst，NULL 时保持 dst 不变
func (n *NullableJSON) Decode(dst any) error {
	if n.Data == nil || len(*n.Data) == 0 {
		return nil
	}
	return json.Unmarshal(*n.Data, dst)
}

// limitOr 限制默认值与上限
func limitOr(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
