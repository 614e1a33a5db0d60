package store

import (
	"context"
	"database/sql"
	"time"

	"pensionhub/internal/model"
)

// Tx 一个事务内可用的存储原语
type Tx interface {
	// PensionerExists 按 PPO 号点查
	PensionerExists(ctx context.Context, ppo string) (bool, error)
	// InsertPensioner 单条原子插入；PPO 号已存在时不写入并返回 false
	InsertPensioner(ctx context.Context, rec *model.PensionerRecord) (bool, error)
	// BumpSummary 汇总计数器增量更新，行不存在时创建
	BumpSummary(ctx context.Context, delta model.SummaryDelta, at time.Time) error
	// ScanPensioners 全表扫描
	ScanPensioners(ctx context.Context, fn func(*model.PensionerRecord) error) error
	// LockSummaries 重算期间阻止并发的增量更新
	LockSummaries(ctx context.Context) error
	// ReplaceSummaries 用 rows 替换指定维度的全部汇总行
	ReplaceSummaries(ctx context.Context, dims []model.Dimension, rows []model.SummaryRow) error
	// Summaries 读取某一维度的汇总行
	Summaries(ctx context.Context, dim model.Dimension) ([]model.SummaryRow, error)
}

// queryer *sql.DB 与 *sql.Tx 的公共部分
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) q() queryer { return t.tx }

func (t *sqlTx) PensionerExists(ctx context.Context, ppo string) (bool, error) {
	return pensionerExists(ctx, t.q(), t.dialect, ppo)
}

func (t *sqlTx) InsertPensioner(ctx context.Context, rec *model.PensionerRecord) (bool, error) {
	return insertPensioner(ctx, t.q(), t.dialect, rec)
}

func (t *sqlTx) BumpSummary(ctx context.Context, delta model.SummaryDelta, at time.Time) error {
	return bumpSummary(ctx, t.q(), t.dialect, delta, at)
}

func (t *sqlTx) ScanPensioners(ctx context.Context, fn func(*model.PensionerRecord) error) error {
	return scanPensioners(ctx, t.q(), fn)
}

func (t *sqlTx) LockSummaries(ctx context.Context) error {
	// SQLite 单连接 + 写事务已串行化
	if t.dialect != DialectPostgres {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "LOCK TABLE summaries IN EXCLUSIVE MODE")
	return err
}

func (t *sqlTx) ReplaceSummaries(ctx context.Context, dims []model.Dimension, rows []model.SummaryRow) error {
	return replaceSummaries(ctx, t.tx, t.dialect, dims, rows)
}

func (t *sqlTx) Summaries(ctx context.Context, dim model.Dimension) ([]model.SummaryRow, error) {
	return listSummaries(ctx, t.q(), t.dialect, dim)
}
