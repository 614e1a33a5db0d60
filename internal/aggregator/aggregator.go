// Package aggregator 汇总表的增量维护与全量重算
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"pensionhub/internal/model"
	"pensionhub/internal/store"
)

// Deltas 一条新记录对各维度汇总行的增量；年龄未知时不参与年龄段维度
func Deltas(rec *model.PensionerRecord) []model.SummaryDelta {
	counters := model.RecordCounters(rec)
	out := make([]model.SummaryDelta, 0, len(model.Dimensions))
	for _, dim := range model.Dimensions {
		key, ok := model.KeysFor(dim, rec)
		if !ok {
			continue
		}
		out = append(out, model.SummaryDelta{SummaryKey: key, Counters: counters})
	}
	return out
}

// Build 从明细记录在内存中构建汇总行
type Build struct {
	dims map[model.Dimension]bool
	rows map[model.SummaryKey]*model.Counters
}

// NewBuild dims 为空表示全部维度
func NewBuild(dims ...model.Dimension) *Build {
	if len(dims) == 0 {
		dims = model.Dimensions
	}
	b := &Build{dims: make(map[model.Dimension]bool, len(dims)), rows: make(map[model.SummaryKey]*model.Counters)}
	for _, d := range dims {
		b.dims[d] = true
	}
	return b
}

// Add 累加一条记录
func (b *Build) Add(rec *model.PensionerRecord) {
	for _, d := range Deltas(rec) {
		if !b.dims[d.Dimension] {
			continue
		}
		c, ok := b.rows[d.SummaryKey]
		if !ok {
			c = &model.Counters{}
			b.rows[d.SummaryKey] = c
		}
		c.Add(d.Counters)
	}
}

// Rows 按 (维度, key1, key2) 排序输出
func (b *Build) Rows(at time.Time) []model.SummaryRow {
	out := make([]model.SummaryRow, 0, len(b.rows))
	for k, c := range b.rows {
		out = append(out, model.SummaryRow{SummaryKey: k, Counters: *c, UpdatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].SummaryKey, out[j].SummaryKey
		if a.Dimension != c.Dimension {
			return model.DimensionOrder(a.Dimension) < model.DimensionOrder(c.Dimension)
		}
		if a.Key1 != c.Key1 {
			return a.Key1 < c.Key1
		}
		return a.Key2 < c.Key2
	})
	return out
}

// Dimensions 参与构建的维度（固定顺序）
func (b *Build) Dimensions() []model.Dimension {
	var out []model.Dimension
	for _, d := range model.Dimensions {
		if b.dims[d] {
			out = append(out, d)
		}
	}
	return out
}

// Transactor 可开启事务的存储
type Transactor interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
}

// Aggregator 汇总维护器
type Aggregator struct {
	store  Transactor
	logger logrus.FieldLogger
	now    func() time.Time
}

// New 创建汇总维护器
func New(s Transactor, logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{store: s, logger: logger, now: time.Now}
}

// OnInsert 在调用方事务中应用新记录的增量
func (a *Aggregator) OnInsert(ctx context.Context, tx store.Tx, rec *model.PensionerRecord) error {
	at := a.now()
	for _, d := range Deltas(rec) {
		if err := tx.BumpSummary(ctx, d, at); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeResult 重算结果
type RecomputeResult struct {
	Records  int64                   `json:"records"`
	Rows     map[model.Dimension]int `json:"rows"`
	Duration time.Duration           `json:"duration"`
}

// Recompute 在单个事务内锁定汇总表、扫描全部明细、原子替换指定维度（为空表示全部）的汇总行
func (a *Aggregator) Recompute(ctx context.Context, dims ...model.Dimension) (*RecomputeResult, error) {
	start := a.now()
	build := NewBuild(dims...)
	res := &RecomputeResult{Rows: make(map[model.Dimension]int)}

	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.LockSummaries(ctx); err != nil {
			return fmt.Errorf("failed to lock summaries: %w", err)
		}
		if err := tx.ScanPensioners(ctx, func(rec *model.PensionerRecord) error {
			res.Records++
			build.Add(rec)
			return nil
		}); err != nil {
			return err
		}
		rows := build.Rows(a.now())
		for _, r := range rows {
			res.Rows[r.Dimension]++
		}
		return tx.ReplaceSummaries(ctx, build.Dimensions(), rows)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recompute summaries: %w", err)
	}

	res.Duration = a.now().Sub(start)
	a.logger.WithFields(logrus.Fields{
		"records":    res.Records,
		"dimensions": len(build.Dimensions()),
		"duration":   res.Duration,
	}).Info("summaries recomputed")
	return res, nil
}

// Drift 存储的汇总行与明细重算结果之间的差异
type Drift struct {
	Key      model.SummaryKey `json:"key"`
	Stored   model.Counters   `json:"stored"`
	Expected model.Counters   `json:"expected"`
}

// Verify 在内存中重算并与已存储的汇总行比对，不做任何写入
func (a *Aggregator) Verify(ctx context.Context, dims ...model.Dimension) ([]Drift, error) {
	build := NewBuild(dims...)
	stored := make(map[model.SummaryKey]model.Counters)

	err := a.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ScanPensioners(ctx, func(rec *model.PensionerRecord) error {
			build.Add(rec)
			return nil
		}); err != nil {
			return err
		}
		for _, dim := range build.Dimensions() {
			rows, err := tx.Summaries(ctx, dim)
			if err != nil {
				return err
			}
			for _, r := range rows {
				stored[r.SummaryKey] = r.Counters
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify summaries: %w", err)
	}

	var drifts []Drift
	for _, r := range build.Rows(time.Time{}) {
		got, ok := stored[r.SummaryKey]
		delete(stored, r.SummaryKey)
		if !ok || got != r.Counters {
			drifts = append(drifts, Drift{Key: r.SummaryKey, Stored: got, Expected: r.Counters})
		}
	}
	// 多余的汇总行（明细中已不存在）
	extra := make([]model.SummaryKey, 0, len(stored))
	for k := range stored {
		extra = append(extra, k)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].String() < extra[j].String() })
	for _, k := range extra {
		drifts = append(drifts, Drift{Key: k, Stored: stored[k]})
	}
	return drifts, nil
}
