package aggregator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pensionhub/internal/model"
	"pensionhub/internal/store"
)

func intp(v int) *int { return &v }

func record(ppo, state, district, bank string, age *int, verified bool) *model.PensionerRecord {
	return &model.PensionerRecord{
		PPONumber:   ppo,
		State:       state,
		District:    district,
		Pincode:     "110001",
		BankName:    bank,
		PDA:         "PDA-" + bank,
		PSA:         "CIVIL",
		Age:         age,
		AgeCategory: model.CategorizeAge(age),
		Verified:    verified,
		IngestedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestAggregator(t *testing.T) (*Aggregator, *store.Store, *test.Hook) {
	t.Helper()
	s, err := store.Open(store.Options{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "agg.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger, hook := test.NewNullLogger()
	a := New(s, logger)
	a.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return a, s, hook
}

func ingest(t *testing.T, a *Aggregator, s *store.Store, recs ...*model.PensionerRecord) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range recs {
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			inserted, err := tx.InsertPensioner(ctx, rec)
			if err != nil || !inserted {
				return err
			}
			return a.OnInsert(ctx, tx, rec)
		}))
	}
}

func TestDeltas(t *testing.T) {
	t.Parallel()

	rec := record("P1", "DELHI", "NEW DELHI", "SBI", intp(72), true)
	deltas := Deltas(rec)
	require.Len(t, deltas, len(model.Dimensions))

	byDim := make(map[model.Dimension]model.SummaryDelta)
	for _, d := range deltas {
		byDim[d.Dimension] = d
	}
	assert.Equal(t, model.SummaryKey{Dimension: model.DimDistrict, Key1: "DELHI", Key2: "NEW DELHI"}, byDim[model.DimDistrict].SummaryKey)
	assert.Equal(t, model.SummaryKey{Dimension: model.DimStateBank, Key1: "DELHI", Key2: "SBI"}, byDim[model.DimStateBank].SummaryKey)
	assert.Equal(t, "70-80", byDim[model.DimAgeCategory].Key1)

	c := byDim[model.DimState].Counters
	assert.Equal(t, model.Counters{Total: 1, Verified: 1, AgeKnown: 1, Age70To80: 1}, c)
}

func TestDeltas_UnknownAgeSkipsAgeDimension(t *testing.T) {
	t.Parallel()

	deltas := Deltas(record("P2", "GOA", "NORTH GOA", "UBI", nil, false))
	require.Len(t, deltas, len(model.Dimensions)-1)
	for _, d := range deltas {
		assert.NotEqual(t, model.DimAgeCategory, d.Dimension)
		assert.Equal(t, model.Counters{Total: 1}, d.Counters)
	}
}

func TestBuild_RowsOrdered(t *testing.T) {
	t.Parallel()

	b := NewBuild(model.DimState, model.DimBank)
	b.Add(record("1", "GOA", "X", "UBI", intp(40), false))
	b.Add(record("2", "DELHI", "X", "SBI", intp(90), true))
	b.Add(record("3", "DELHI", "X", "SBI", nil, true))

	rows := b.Rows(time.Time{})
	require.Len(t, rows, 4)
	assert.Equal(t, "state:DELHI", rows[0].SummaryKey.String())
	assert.Equal(t, int64(2), rows[0].Total)
	assert.Equal(t, int64(1), rows[0].Age90Plus)
	assert.Equal(t, "state:GOA", rows[1].SummaryKey.String())
	assert.Equal(t, "bank:SBI", rows[2].SummaryKey.String())
	assert.Equal(t, "bank:UBI", rows[3].SummaryKey.String())
	assert.Equal(t, []model.Dimension{model.DimState, model.DimBank}, b.Dimensions())
}

func TestOnInsert_MatchesRecompute(t *testing.T) {
	t.Parallel()

	a, s, hook := newTestAggregator(t)
	ctx := context.Background()

	ingest(t, a, s,
		record("A1", "DELHI", "NEW DELHI", "SBI", intp(55), true),
		record("A2", "DELHI", "NEW DELHI", "PNB", intp(80), false),
		record("A3", "DELHI", "SOUTH DELHI", "SBI", nil, true),
		record("A4", "GOA", "NORTH GOA", "SBI", intp(49), false),
		// 重复编号不产生增量
		record("A1", "GOA", "NORTH GOA", "UBI", intp(30), true),
	)

	drifts, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	states, err := s.ListSummaries(ctx, model.DimState)
	require.NoError(t, err)
	require.Len(t, states, 2)
	var total int64
	for _, r := range states {
		total += r.Total
	}
	n, err := s.CountPensioners(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, total)

	ages, err := s.ListSummaries(ctx, model.DimAgeCategory)
	require.NoError(t, err)
	var aged int64
	for _, r := range ages {
		aged += r.Total
	}
	assert.Equal(t, int64(3), aged)

	res, err := a.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Records)
	assert.Equal(t, 2, res.Rows[model.DimState])
	assert.Equal(t, 3, res.Rows[model.DimAgeCategory])

	after, err := s.ListSummaries(ctx, model.DimState)
	require.NoError(t, err)
	for i := range after {
		assert.Equal(t, states[i].Counters, after[i].Counters)
	}

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, int64(4), hook.LastEntry().Data["records"])
}

func TestVerify_DetectsDrift(t *testing.T) {
	t.Parallel()

	a, s, _ := newTestAggregator(t)
	ctx := context.Background()
	ingest(t, a, s,
		record("B1", "KERALA", "ERNAKULAM", "SBI", intp(61), true),
		record("B2", "KERALA", "ERNAKULAM", "SBI", intp(62), false),
	)

	at := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BumpSummary(ctx, model.SummaryDelta{
			SummaryKey: model.SummaryKey{Dimension: model.DimState, Key1: "KERALA"},
			Counters:   model.Counters{Total: 1},
		}, at); err != nil {
			return err
		}
		return tx.BumpSummary(ctx, model.SummaryDelta{
			SummaryKey: model.SummaryKey{Dimension: model.DimState, Key1: "GHOST"},
			Counters:   model.Counters{Total: 5},
		}, at)
	}))

	drifts, err := a.Verify(ctx, model.DimState)
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	assert.Equal(t, "KERALA", drifts[0].Key.Key1)
	assert.Equal(t, int64(3), drifts[0].Stored.Total)
	assert.Equal(t, int64(2), drifts[0].Expected.Total)
	assert.Equal(t, "GHOST", drifts[1].Key.Key1)
	assert.Zero(t, drifts[1].Expected.Total)

	// 只重算 state 维度即可修复，其余维度不受影响
	_, err = a.Recompute(ctx, model.DimState)
	require.NoError(t, err)
	drifts, err = a.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
