package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pensionhub/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "data", "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(ppo, state, bank string, age *int, verified bool) *model.PensionerRecord {
	rec := &model.PensionerRecord{
		PPONumber:   ppo,
		State:       state,
		District:    "D1",
		BankName:    bank,
		Pincode:     "110001",
		Verified:    verified,
		Age:         age,
		AgeCategory: model.CategorizeAge(age),
		IngestedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if age != nil {
		dob := time.Date(2025-*age, 1, 1, 0, 0, 0, 0, time.UTC)
		rec.DateOfBirth = &dob
	}
	return rec
}

func intp(v int) *int { return &v }

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Options{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
}

func TestInsertPensioner_OnConflictKeepsFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	first := testRecord("P1", "DELHI", "SBI", intp(70), true)
	second := testRecord("P1", "GOA", "UBI", intp(50), false)

	err := s.WithTx(ctx, func(tx Tx) error {
		exists, err := tx.PensionerExists(ctx, "P1")
		require.NoError(t, err)
		assert.False(t, exists)

		inserted, err := tx.InsertPensioner(ctx, first)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tx.InsertPensioner(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetPensioner(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "DELHI", got.State)
	assert.Equal(t, "SBI", got.BankName)
	require.NotNil(t, got.Age)
	assert.Equal(t, 70, *got.Age)
	assert.Equal(t, "1955-01-01", got.DOBString())
	assert.True(t, got.Verified)
	assert.Nil(t, got.GrandTotal)

	_, err = s.GetPensioner(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertPensioner(ctx, testRecord("R1", "DELHI", "SBI", nil, false)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.CountPensioners(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBumpSummary_Upsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	key := model.SummaryKey{Dimension: model.DimState, Key1: "DELHI"}

	for i := 0; i < 3; i++ {
		err := s.WithTx(ctx, func(tx Tx) error {
			return tx.BumpSummary(ctx, model.SummaryDelta{
				SummaryKey: key,
				Counters:   model.Counters{Total: 1, Verified: int64(i % 2), AgeKnown: 1, Age70To80: 1},
			}, at)
		})
		require.NoError(t, err)
	}

	row, err := s.GetSummary(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.Total)
	assert.Equal(t, int64(1), row.Verified)
	assert.Equal(t, int64(3), row.Age70To80)
	assert.Equal(t, at, row.UpdatedAt)

	_, err = s.GetSummary(ctx, model.SummaryKey{Dimension: model.DimState, Key1: "GOA"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceSummaries_OnlyTouchesGivenDimensions(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		if err := tx.BumpSummary(ctx, model.SummaryDelta{SummaryKey: model.SummaryKey{Dimension: model.DimState, Key1: "OLD"}, Counters: model.Counters{Total: 9}}, at); err != nil {
			return err
		}
		return tx.BumpSummary(ctx, model.SummaryDelta{SummaryKey: model.SummaryKey{Dimension: model.DimBank, Key1: "SBI"}, Counters: model.Counters{Total: 4}}, at)
	}))

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		if err := tx.LockSummaries(ctx); err != nil {
			return err
		}
		return tx.ReplaceSummaries(ctx, []model.Dimension{model.DimState}, []model.SummaryRow{
			{SummaryKey: model.SummaryKey{Dimension: model.DimState, Key1: "NEW"}, Counters: model.Counters{Total: 2}, UpdatedAt: at},
		})
	}))

	states, err := s.ListSummaries(ctx, model.DimState)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "NEW", states[0].Key1)

	banks, err := s.ListSummaries(ctx, model.DimBank)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, int64(4), banks[0].Total)
}

func TestListPensioners_Filters(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	recs := []*model.PensionerRecord{
		testRecord("A1", "DELHI", "SBI", intp(65), true),
		testRecord("A2", "DELHI", "PNB", intp(85), false),
		testRecord("A3", "GOA", "SBI", nil, true),
		testRecord("A4", "DELHI", "SBI", intp(91), false),
	}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for _, r := range recs {
			if _, err := tx.InsertPensioner(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))

	state, bank := "DELHI", "SBI"
	got, total, err := s.ListPensioners(ctx, PensionerFilter{State: &state, Bank: &bank})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].PPONumber)
	assert.Equal(t, "A4", got[1].PPONumber)

	verified := true
	got, total, err = s.ListPensioners(ctx, PensionerFilter{Verified: &verified, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, got, 1)
	assert.Equal(t, "A3", got[0].PPONumber)

	// 值中含有 SQL 片段也只是普通参数
	inject := "DELHI' OR '1'='1"
	got, total, err = s.ListPensioners(ctx, PensionerFilter{State: &inject})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)

	cells, err := s.CrossTab(ctx, ColState, ColVerified, PensionerFilter{})
	require.NoError(t, err)
	assert.Equal(t, []CrossTabCell{
		{Row: "DELHI", Col: "0", Total: 2, Verified: 0},
		{Row: "DELHI", Col: "1", Total: 1, Verified: 1},
		{Row: "GOA", Col: "1", Total: 1, Verified: 1},
	}, cells)
}

func TestSelectBuilder_Postgres(t *testing.T) {
	t.Parallel()

	state := "GOA"
	query, args := PensionerFilter{State: &state, Limit: 10, Offset: 20}.
		apply(Select(DialectPostgres, "pensioners", "ppo_number")).
		OrderBy("ppo_number").
		Page(10, 20).
		Build()
	assert.Equal(t, "SELECT ppo_number FROM pensioners WHERE state = $1 ORDER BY ppo_number LIMIT $2 OFFSET $3", query)
	assert.Equal(t, []any{"GOA", 10, 20}, args)

	_, err := ParseColumn("state; DROP TABLE pensioners")
	assert.Error(t, err)
	c, err := ParseColumn(" Bank ")
	require.NoError(t, err)
	assert.Equal(t, ColBank, c)
}

func TestImportLog_Lifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateImportLog(ctx, "batch-1", "bob.xlsx", 1234, "abc", start))
	l, err := s.GetImportLog(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, ImportProcessing, l.Status)
	assert.Nil(t, l.CompletedAt)

	res := &model.BatchResult{BatchID: "batch-1", DetectedFormat: "BOB", Confidence: 100, TotalRows: 5, InsertedRows: 3, Duplicates: 1, Rejected: 1, Errors: 1}
	require.NoError(t, s.FinishImportLog(ctx, res, ImportCompleted, start.Add(time.Minute)))

	logs, err := s.ListImportLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ImportCompleted, logs[0].Status)
	assert.Equal(t, 3, logs[0].InsertedRows)
	require.NotNil(t, logs[0].CompletedAt)

	_, err = s.GetImportLog(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsUnavailable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsUnavailable(nil))
	assert.False(t, IsUnavailable(errors.New("constraint failed")))
	assert.True(t, IsUnavailable(fmt.Errorf("insert: %w", driver.ErrBadConn)))
	assert.True(t, IsUnavailable(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrIoErr})))
	assert.False(t, IsUnavailable(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.True(t, IsUnavailable(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsUnavailable(&pgconn.PgError{Code: "23505"}))

	s := openTestStore(t)
	require.NoError(t, s.Close())
	_, err := s.CountPensioners(context.Background())
	assert.True(t, IsUnavailable(err))
}
