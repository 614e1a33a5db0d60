package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pensionhub/internal/model"
)

const summaryColumns = `dimension, key1, key2, total, verified, age_known,
	age_below_50, age_50_60, age_60_70, age_70_80, age_80_90, age_90_plus, updated_at`

const bumpSummarySQL = `
	INSERT INTO summaries (` + summaryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (dimension, key1, key2) DO UPDATE SET
		total        = summaries.total + excluded.total,
		verified     = summaries.verified + excluded.verified,
		age_known    = summaries.age_known + excluded.age_known,
		age_below_50 = summaries.age_below_50 + excluded.age_below_50,
		age_50_60    = summaries.age_50_60 + excluded.age_50_60,
		age_60_70    = summaries.age_60_70 + excluded.age_60_70,
		age_70_80    = summaries.age_70_80 + excluded.age_70_80,
		age_80_90    = summaries.age_80_90 + excluded.age_80_90,
		age_90_plus  = summaries.age_90_plus + excluded.age_90_plus,
		updated_at   = excluded.updated_at
`

const insertSummarySQL = `
	INSERT INTO summaries (` + summaryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func summaryArgs(k model.SummaryKey, c model.Counters, at time.Time) []any {
	return []any{
		string(k.Dimension), k.Key1, k.Key2,
		c.Total, c.Verified, c.AgeKnown,
		c.AgeBelow50, c.Age50To60, c.Age60To70, c.Age70To80, c.Age80To90, c.Age90Plus,
		at.UTC().Format(time.RFC3339),
	}
}

func bumpSummary(ctx context.Context, q queryer, d Dialect, delta model.SummaryDelta, at time.Time) error {
	if _, err := q.ExecContext(ctx, rebind(d, bumpSummarySQL), summaryArgs(delta.SummaryKey, delta.Counters, at)...); err != nil {
		return fmt.Errorf("failed to update summary %s: %w", delta.SummaryKey, err)
	}
	return nil
}

func replaceSummaries(ctx context.Context, tx *sql.Tx, d Dialect, dims []model.Dimension, rows []model.SummaryRow) error {
	for _, dim := range dims {
		if _, err := tx.ExecContext(ctx, rebind(d, "DELETE FROM summaries WHERE dimension = ?"), string(dim)); err != nil {
			return fmt.Errorf("failed to clear summaries %s: %w", dim, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, rebind(d, insertSummarySQL))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, summaryArgs(r.SummaryKey, r.Counters, r.UpdatedAt)...); err != nil {
			return fmt.Errorf("failed to insert summary %s: %w", r.SummaryKey, err)
		}
	}
	return nil
}

func listSummaries(ctx context.Context, q queryer, d Dialect, dim model.Dimension) ([]model.SummaryRow, error) {
	rows, err := q.QueryContext(ctx, rebind(d,
		"SELECT "+summaryColumns+" FROM summaries WHERE dimension = ? ORDER BY key1, key2"), string(dim))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []model.SummaryRow
	for rows.Next() {
		var (
			r         model.SummaryRow
			dimension string
			updatedAt string
		)
		if err := rows.Scan(
			&dimension, &r.Key1, &r.Key2, &r.Total, &r.Verified, &r.AgeKnown,
			&r.AgeBelow50, &r.Age50To60, &r.Age60To70, &r.Age70To80, &r.Age80To90, &r.Age90Plus,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to read summary: %w", err)
		}
		r.Dimension = model.Dimension(dimension)
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			r.UpdatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSummaries 读取某一维度的全部汇总行
func (s *Store) ListSummaries(ctx context.Context, dim model.Dimension) ([]model.SummaryRow, error) {
	return listSummaries(ctx, s.db, s.dialect, dim)
}

// GetSummary 读取单个汇总行
func (s *Store) GetSummary(ctx context.Context, key model.SummaryKey) (*model.SummaryRow, error) {
	rows, err := s.ListSummaries(ctx, key.Dimension)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Key1 == key.Key1 && rows[i].Key2 == key.Key2 {
			return &rows[i], nil
		}
	}
	return nil, ErrNotFound
}
