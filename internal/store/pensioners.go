package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pensionhub/internal/model"
)

var pensionerColumns = []string{
	"ppo_number", "pensioner_name", "date_of_birth", "dob_sentinel", "age", "age_category",
	"psa", "pda", "bank_name", "branch_name", "branch_code",
	"pincode", "state", "district", "city", "address",
	"verified", "age_less_than_80", "age_more_than_80", "grand_total",
	"source_format", "source_file", "source_sheet", "source_row", "batch_id", "ingested_at",
}

var insertPensionerSQL = fmt.Sprintf(
	"INSERT INTO pensioners (%s) VALUES (%s) ON CONFLICT (ppo_number) DO NOTHING",
	strings.Join(pensionerColumns, ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(pensionerColumns)), ", "),
)

func pensionerExists(ctx context.Context, q queryer, d Dialect, ppo string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, rebind(d, "SELECT 1 FROM pensioners WHERE ppo_number = ?"), ppo).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up pensioner: %w", err)
	}
	return true, nil
}

func insertPensioner(ctx context.Context, q queryer, d Dialect, r *model.PensionerRecord) (bool, error) {
	var dob any
	if r.DateOfBirth != nil {
		dob = r.DOBString()
	}
	verified := 0
	if r.Verified {
		verified = 1
	}
	res, err := q.ExecContext(ctx, rebind(d, insertPensionerSQL),
		r.PPONumber, r.PensionerName, dob, r.DOBSentinel, nullableInt(r.Age), string(r.AgeCategory),
		r.PSA, r.PDA, r.BankName, r.BranchName, r.BranchCode,
		r.Pincode, r.State, r.District, r.City, r.Address,
		verified, nullableInt(r.AgeLessThan80), nullableInt(r.AgeMoreThan80), nullableInt(r.GrandTotal),
		r.SourceFormat, r.SourceFile, r.SourceSheet, r.SourceRow, r.BatchID, r.IngestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert pensioner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPensioner(sc rowScanner) (*model.PensionerRecord, error) {
	var (
		r                         model.PensionerRecord
		dob                       sql.NullString
		age, below80, above80, gt sql.NullInt64
		ageCategory, ingestedAt   string
		verified                  int64
	)
	err := sc.Scan(
		&r.PPONumber, &r.PensionerName, &dob, &r.DOBSentinel, &age, &ageCategory,
		&r.PSA, &r.PDA, &r.BankName, &r.BranchName, &r.BranchCode,
		&r.Pincode, &r.State, &r.District, &r.City, &r.Address,
		&verified, &below80, &above80, &gt,
		&r.SourceFormat, &r.SourceFile, &r.SourceSheet, &r.SourceRow, &r.BatchID, &ingestedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid && dob.String != "" {
		if t, err := time.Parse(model.DateLayout, dob.String); err == nil {
			r.DateOfBirth = &t
		}
	}
	r.Age = intPtr(age)
	r.AgeLessThan80 = intPtr(below80)
	r.AgeMoreThan80 = intPtr(above80)
	r.GrandTotal = intPtr(gt)
	r.AgeCategory = model.AgeCategory(ageCategory)
	r.Verified = verified != 0
	if t, err := time.Parse(time.RFC3339, ingestedAt); err == nil {
		r.IngestedAt = t
	}
	return &r, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func scanPensioners(ctx context.Context, q queryer, fn func(*model.PensionerRecord) error) error {
	rows, err := q.QueryContext(ctx, "SELECT "+strings.Join(pensionerColumns, ", ")+" FROM pensioners ORDER BY ppo_number")
	if err != nil {
		return fmt.Errorf("failed to scan pensioners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanPensioner(rows)
		if err != nil {
			return fmt.Errorf("failed to read pensioner: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetPensioner 按 PPO 号读取
func (s *Store) GetPensioner(ctx context.Context, ppo string) (*model.PensionerRecord, error) {
	query, args := Select(s.dialect, "pensioners", pensionerColumns...).
		WhereEq("ppo_number", ppo).
		Build()
	rec, err := scanPensioner(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pensioner: %w", err)
	}
	return rec, nil
}

// ListPensioners 按条件分页查询，同时返回满足条件的总数
func (s *Store) ListPensioners(ctx context.Context, f PensionerFilter) ([]*model.PensionerRecord, int64, error) {
	countSQL, countArgs := f.apply(Select(s.dialect, "pensioners", "COUNT(*)")).Build()
	var total int64
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pensioners: %w", err)
	}

	query, args := f.apply(Select(s.dialect, "pensioners", pensionerColumns...)).
		OrderBy("ppo_number").
		Page(f.Limit, f.Offset).
		Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pensioners: %w", err)
	}
	defer rows.Close()

	var out []*model.PensionerRecord
	for rows.Next() {
		rec, err := scanPensioner(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read pensioner: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// CountPensioners 明细总数
func (s *Store) CountPensioners(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pensioners").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pensioners: %w", err)
	}
	return n, nil
}

// CrossTabCell 交叉表单元
type CrossTabCell struct {
	Row      string `json:"row"`
	Col      string `json:"col"`
	Total    int64  `json:"total"`
	Verified int64  `json:"verified"`
}

// CrossTab 两个白名单列的交叉计数
func (s *Store) CrossTab(ctx context.Context, row, col Column, f PensionerFilter) ([]CrossTabCell, error) {
	query, args := f.apply(Select(s.dialect, "pensioners",
		castText(row), castText(col), "COUNT(*)", "SUM(verified)")).
		GroupBy(row, col).
		OrderBy("1", "2").
		Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build cross tab: %w", err)
	}
	defer rows.Close()

	var out []CrossTabCell
	for rows.Next() {
		var c CrossTabCell
		var verified sql.NullInt64
		if err := rows.Scan(&c.Row, &c.Col, &c.Total, &verified); err != nil {
			return nil, fmt.Errorf("failed to read cross tab: %w", err)
		}
		c.Verified = verified.Int64
		out = append(out, c)
	}
	return out, rows.Err()
}

// castText verified 为整数列，统一按文本返回
func castText(col Column) string {
	if col != ColVerified {
		return string(col)
	}
	return "CAST(verified AS TEXT)"
}
