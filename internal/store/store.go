package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// Dialect 数据库方言（即 database/sql 驱动名）
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// Options 连接参数
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Store 存储层；由命令入口打开一次，显式传递给各组件，退出时关闭
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open 打开数据库并初始化表结构
func Open(opts Options) (*Store, error) {
	dialect := Dialect(opts.Driver)
	switch dialect {
	case DialectSQLite:
		// 确保 data 目录存在
		if path := sqlitePath(opts.DSN); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", opts.Driver)
	}

	db, err := sql.Open(string(dialect), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite 单连接，写操作串行
		db.SetMaxIdleConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// sqlitePath 从 DSN 中取文件路径，内存库返回空
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// initSchema 逐条执行建表语句
func (s *Store) initSchema(ctx context.Context) error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	for _, stmt := range strings.Split(string(schemaSQL), ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Dialect 当前方言
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Rebind 将 ? 占位符转换为当前方言的写法
func (s *Store) Rebind(query string) string {
	return rebind(s.dialect, query)
}

func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// WithTx 在事务中执行 fn；fn 返回错误时回滚
func (s *Store) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUnavailable 错误是否表示存储不可用（连接断开、文件损坏、磁盘满等），
// 此类错误应终止整个批次而不是只跳过当前行
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if strings.Contains(err.Error(), "database is closed") {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrFull,
			sqlite3.ErrNotADB, sqlite3.ErrReadonly:
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception；57P: operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.Timeout(err)
}
