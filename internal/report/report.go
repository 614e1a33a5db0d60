// Package report 只读查询：汇总视图、明细查询、交叉表和运行状态。
// 比率在读取时由计数器计算，不落库。
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"pensionhub/internal/model"
	"pensionhub/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Reader 查询所需的存储能力
type Reader interface {
	ListSummaries(ctx context.Context, dim model.Dimension) ([]model.SummaryRow, error)
	ListPensioners(ctx context.Context, f store.PensionerFilter) ([]*model.PensionerRecord, int64, error)
	GetPensioner(ctx context.Context, ppo string) (*model.PensionerRecord, error)
	CountPensioners(ctx context.Context) (int64, error)
	CrossTab(ctx context.Context, row, col store.Column, f store.PensionerFilter) ([]store.CrossTabCell, error)
	ListImportLogs(ctx context.Context, limit int) ([]*model.ImportLog, error)
}

// Service 查询服务
type Service struct {
	reader Reader
}

// NewService 创建查询服务
func NewService(r Reader) *Service {
	return &Service{reader: r}
}

// Rate 百分比，保留两位小数；分母为 0 时为 0
func Rate(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).Mul(hundred).Div(decimal.NewFromInt(den)).Round(2)
}

// AgeShare 年龄段占比
type AgeShare struct {
	Category model.AgeCategory `json:"category"`
	Count    int64             `json:"count"`
	Share    decimal.Decimal   `json:"share"` // 占已知年龄人数的百分比
}

func ageShares(c model.Counters) []AgeShare {
	out := make([]AgeShare, 0, len(model.AgeCategories))
	for _, cat := range model.AgeCategories {
		if cat == model.AgeUnknown {
			continue
		}
		n := c.Bucket(cat)
		out = append(out, AgeShare{Category: cat, Count: n, Share: Rate(n, c.AgeKnown)})
	}
	return out
}

// SummaryView 汇总行及读取时计算的比率
type SummaryView struct {
	model.SummaryRow
	VerificationRate decimal.Decimal `json:"verificationRate"`
	AgeUnknown       int64           `json:"ageUnknown"`
	AgeShares        []AgeShare      `json:"ageShares"`
}

func newSummaryView(r model.SummaryRow) SummaryView {
	return SummaryView{
		SummaryRow:       r,
		VerificationRate: Rate(r.Verified, r.Total),
		AgeUnknown:       r.Total - r.AgeKnown,
		AgeShares:        ageShares(r.Counters),
	}
}

// SummaryQuery 汇总查询参数
type SummaryQuery struct {
	Key1  string // 只看某个一级键（如 district 维度下的某个邦）
	Sort  string // key（默认）| total | rate
	Limit int
}

// SummaryReport 一个维度的汇总
type SummaryReport struct {
	Dimension        model.Dimension `json:"dimension"`
	Rows             []SummaryView   `json:"rows"`
	Totals           model.Counters  `json:"totals"`
	VerificationRate decimal.Decimal `json:"verificationRate"`
}

// Summaries 读取一个维度的汇总行
func (s *Service) Summaries(ctx context.Context, dim model.Dimension, q SummaryQuery) (*SummaryReport, error) {
	rows, err := s.reader.ListSummaries(ctx, dim)
	if err != nil {
		return nil, err
	}

	rep := &SummaryReport{Dimension: dim, Rows: make([]SummaryView, 0, len(rows))}
	for _, r := range rows {
		if q.Key1 != "" && !strings.EqualFold(r.Key1, q.Key1) {
			continue
		}
		rep.Totals.Add(r.Counters)
		rep.Rows = append(rep.Rows, newSummaryView(r))
	}
	rep.VerificationRate = Rate(rep.Totals.Verified, rep.Totals.Total)

	switch q.Sort {
	case "", "key":
	case "total":
		sort.SliceStable(rep.Rows, func(i, j int) bool { return rep.Rows[i].Total > rep.Rows[j].Total })
	case "rate":
		sort.SliceStable(rep.Rows, func(i, j int) bool {
			return rep.Rows[i].VerificationRate.GreaterThan(rep.Rows[j].VerificationRate)
		})
	default:
		return nil, fmt.Errorf("unsupported sort %q", q.Sort)
	}
	if q.Limit > 0 && len(rep.Rows) > q.Limit {
		rep.Rows = rep.Rows[:q.Limit]
	}
	return rep, nil
}

// PensionerPage 明细分页结果
type PensionerPage struct {
	Items  []*model.PensionerRecord `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// DefaultPageSize 明细默认分页大小
const DefaultPageSize = 50

// MaxPageSize 明细最大分页大小
const MaxPageSize = 1000

// Pensioners 按条件查询明细
func (s *Service) Pensioners(ctx context.Context, f store.PensionerFilter) (*PensionerPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.reader.ListPensioners(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.PensionerRecord{}
	}
	return &PensionerPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Pensioner 按 PPO 号读取
func (s *Service) Pensioner(ctx context.Context, ppo string) (*model.PensionerRecord, error) {
	return s.reader.GetPensioner(ctx, strings.ToUpper(strings.TrimSpace(ppo)))
}

// CrossTab 交叉表（矩阵形式）
type CrossTab struct {
	RowField string               `json:"rowField"`
	ColField string               `json:"colField"`
	Rows     []string             `json:"rows"`
	Cols     []string             `json:"cols"`
	Counts   [][]int64            `json:"counts"`
	Rates    [][]string           `json:"rates"` // 各单元的核验率
	RowTotal []int64              `json:"rowTotal"`
	ColTotal []int64              `json:"colTotal"`
	Cells    []store.CrossTabCell `json:"-"`
}

// CrossTab 两个字段的交叉计数；字段名不在白名单内时返回错误
func (s *Service) CrossTab(ctx context.Context, rowField, colField string, f store.PensionerFilter) (*CrossTab, error) {
	row, err := store.ParseColumn(rowField)
	if err != nil {
		return nil, err
	}
	col, err := store.ParseColumn(colField)
	if err != nil {
		return nil, err
	}
	if row == col {
		return nil, fmt.Errorf("cross tab needs two different fields, got %q twice", row)
	}

	cells, err := s.reader.CrossTab(ctx, row, col, f)
	if err != nil {
		return nil, err
	}

	ct := &CrossTab{RowField: string(row), ColField: string(col), Cells: cells}
	rowIdx := map[string]int{}
	colIdx := map[string]int{}
	for _, c := range cells {
		if _, ok := rowIdx[c.Row]; !ok {
			rowIdx[c.Row] = len(ct.Rows)
			ct.Rows = append(ct.Rows, c.Row)
		}
		if _, ok := colIdx[c.Col]; !ok {
			colIdx[c.Col] = len(ct.Cols)
			ct.Cols = append(ct.Cols, c.Col)
		}
	}
	sort.Strings(ct.Cols)
	for i, c := range ct.Cols {
		colIdx[c] = i
	}

	ct.Counts = make([][]int64, len(ct.Rows))
	ct.Rates = make([][]string, len(ct.Rows))
	for i := range ct.Rows {
		ct.Counts[i] = make([]int64, len(ct.Cols))
		ct.Rates[i] = make([]string, len(ct.Cols))
	}
	ct.RowTotal = make([]int64, len(ct.Rows))
	ct.ColTotal = make([]int64, len(ct.Cols))
	for _, c := range cells {
		i, j := rowIdx[c.Row], colIdx[c.Col]
		ct.Counts[i][j] = c.Total
		ct.Rates[i][j] = Rate(c.Verified, c.Total).StringFixed(2)
		ct.RowTotal[i] += c.Total
		ct.ColTotal[j] += c.Total
	}
	return ct, nil
}

// Status 运行状态
type Status struct {
	Initialized      bool             `json:"initialized"`
	TotalPensioners  int64            `json:"totalPensioners"`
	Verified         int64            `json:"verified"`
	VerificationRate decimal.Decimal  `json:"verificationRate"`
	States           int              `json:"states"`
	UnknownState     int64            `json:"unknownState"`
	AgeShares        []AgeShare       `json:"ageShares"`
	LastImport       *model.ImportLog `json:"lastImport,omitempty"`
}

// Status 汇总总体状态
func (s *Service) Status(ctx context.Context) (*Status, error) {
	total, err := s.reader.CountPensioners(ctx)
	if err != nil {
		return nil, err
	}
	states, err := s.reader.ListSummaries(ctx, model.DimState)
	if err != nil {
		return nil, err
	}

	st := &Status{Initialized: total > 0, TotalPensioners: total}
	var all model.Counters
	for _, r := range states {
		all.Add(r.Counters)
		if r.Key1 == model.UnknownRegion {
			st.UnknownState = r.Total
			continue
		}
		st.States++
	}
	st.Verified = all.Verified
	st.VerificationRate = Rate(all.Verified, all.Total)
	st.AgeShares = ageShares(all)

	logs, err := s.reader.ListImportLogs(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		st.LastImport = logs[0]
	}
	return st, nil
}
