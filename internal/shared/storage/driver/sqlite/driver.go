// Package sqlite SQLite 数据库驱动
//
// 提供 SQLite 连接管理、方言实现和自动 Schema 迁移。
// 适用于开发、测试和轻量级部署场景。
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"memoria/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) CurrentTimestamp() string {
	return "datetime('now')"
}

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 SQLite 数据库连接
// dsn 示例: "file:memoria.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// 内存库每个连接都是独立数据库，必须限制为单连接
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema SQLite 完整建表语句（与 PostgreSQL 版本保持同构）
const schema = `
-- 年鉴档案（MongoDB 中按部门分集合存储，这里用 collection 列区分）
CREATE TABLE IF NOT EXISTS profiles (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL DEFAULT '',
    type VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL DEFAULT 'pending',
    year_id VARCHAR(64) NOT NULL,
    collection VARCHAR(64) NOT NULL,
    department VARCHAR(32) NOT NULL,
    year_level VARCHAR(64) NOT NULL DEFAULT '',
    course_program VARCHAR(128) NOT NULL DEFAULT '',
    block_section VARCHAR(64) NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '{}',
    search_text TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    submitted_at DATETIME,
    reviewed_at DATETIME,
    reviewed_by VARCHAR(128) NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_profiles_year_status ON profiles(year_id, status);
CREATE INDEX IF NOT EXISTS idx_profiles_department ON profiles(department);

-- 学年
CREATE TABLE IF NOT EXISTS school_years (
    id VARCHAR(64) PRIMARY KEY,
    year_label VARCHAR(64) NOT NULL,
    start_date DATETIME NOT NULL,
    end_date DATETIME NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- 通知
CREATE TABLE IF NOT EXISTS notifications (
    id VARCHAR(128) PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    type VARCHAR(32) NOT NULL DEFAULT 'info',
    title VARCHAR(256) NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    timestamp DATETIME NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT 0,
    priority VARCHAR(16) NOT NULL DEFAULT 'medium',
    category VARCHAR(64) NOT NULL DEFAULT 'system',
    action_url TEXT NOT NULL DEFAULT '',
    metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);

-- 管理员欢迎通知记录
CREATE TABLE IF NOT EXISTS admin_sessions (
    email VARCHAR(256) PRIMARY KEY,
    welcomed_at DATETIME NOT NULL
);

-- 画廊
CREATE TABLE IF NOT EXISTS albums (
    id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(256) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(64) NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    is_public BOOLEAN NOT NULL DEFAULT 0,
    cover_url TEXT NOT NULL DEFAULT '',
    year_id VARCHAR(64) NOT NULL DEFAULT '',
    media_count INTEGER NOT NULL DEFAULT 0,
    created_by VARCHAR(128) NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS media_items (
    id VARCHAR(64) PRIMARY KEY,
    album_id VARCHAR(64) NOT NULL,
    url TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    caption TEXT NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    likes INTEGER NOT NULL DEFAULT 0,
    uploaded_by VARCHAR(128) NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_items_album ON media_items(album_id);

CREATE TABLE IF NOT EXISTS media_likes (
    id VARCHAR(128) PRIMARY KEY,
    media_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(128) NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (media_id, user_id)
);

-- 用户
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    email VARCHAR(256) NOT NULL UNIQUE,
    school_id VARCHAR(64) NOT NULL DEFAULT '',
    full_name VARCHAR(256) NOT NULL DEFAULT '',
    password_hash VARCHAR(256) NOT NULL,
    role VARCHAR(32) NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_school_id ON users(school_id) WHERE school_id <> '';

-- 课程 / 方向 / 班级
CREATE TABLE IF NOT EXISTS courses (
    id VARCHAR(64) PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(256) NOT NULL,
    department VARCHAR(32) NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS course_majors (
    id VARCHAR(64) PRIMARY KEY,
    course_id VARCHAR(64) NOT NULL,
    name VARCHAR(256) NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (course_id, name)
);

CREATE TABLE IF NOT EXISTS sections (
    id VARCHAR(64) PRIMARY KEY,
    department VARCHAR(32) NOT NULL,
    year_level VARCHAR(64) NOT NULL,
    course_program VARCHAR(128) NOT NULL DEFAULT '',
    name VARCHAR(128) NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (department, year_level, course_program, name)
);

-- 举报
CREATE TABLE IF NOT EXISTS reports (
    id VARCHAR(64) PRIMARY KEY,
    reporter_id VARCHAR(128) NOT NULL,
    target_type VARCHAR(32) NOT NULL,
    target_id VARCHAR(64) NOT NULL,
    reason TEXT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'open',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- 审计日志
CREATE TABLE IF NOT EXISTS audit_logs (
    id VARCHAR(128) PRIMARY KEY,
    actor VARCHAR(256) NOT NULL,
    action VARCHAR(64) NOT NULL,
    target_type VARCHAR(32) NOT NULL,
    target_id VARCHAR(64) NOT NULL,
    details TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);
`
