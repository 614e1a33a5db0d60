package exporter

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"pensionhub/internal/model"
	"pensionhub/internal/report"
)

// OverviewSheet 总览工作表名
const OverviewSheet = "Overview"

// Exporter 汇总表导出器：总览 + 每个维度一个工作表
type Exporter struct {
	reports *report.Service
}

// NewExporter 创建导出器
func NewExporter(reports *report.Service) *Exporter {
	return &Exporter{reports: reports}
}

// ExportOptions 导出选项
type ExportOptions struct {
	Dimensions []model.Dimension // 为空表示全部维度
}

// sheetTitles 维度对应的工作表名及键列标题
var sheetTitles = map[model.Dimension]struct {
	sheet      string
	key1, key2 string
}{
	model.DimState:       {"By State", "State", ""},
	model.DimDistrict:    {"By District", "State", "District"},
	model.DimPincode:     {"By Pincode", "Pincode", ""},
	model.DimBank:        {"By Bank", "Bank", ""},
	model.DimStateBank:   {"By State & Bank", "State", "Bank"},
	model.DimPDA:         {"By PDA", "PDA", ""},
	model.DimPSA:         {"By PSA", "PSA", ""},
	model.DimAgeCategory: {"By Age Category", "Age Category", ""},
}

// Export 生成工作簿
func (e *Exporter) Export(ctx context.Context, opts ExportOptions, progress func(ProgressEvent)) (*excelize.File, error) {
	dims := opts.Dimensions
	if len(dims) == 0 {
		dims = model.Dimensions
	}

	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	rep := newProgressReporter(progress)
	rep.report(5, StageOverview, OverviewSheet)
	if err := e.writeOverview(ctx, f, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, dim := range dims {
		rep.report(10+80*i/len(dims), string(dim), sheetTitles[dim].sheet)
		if err := e.writeDimension(ctx, f, dim, headerStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	rep.report(100, StageDone, "")
	return f, nil
}

func (e *Exporter) writeOverview(ctx context.Context, f *excelize.File, headerStyle int) error {
	st, err := e.reports.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	// 新建工作簿自带的 Sheet1 即总览
	if err := f.SetSheetName("Sheet1", OverviewSheet); err != nil {
		return err
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Total pensioners", st.TotalPensioners},
		{"Verified", st.Verified},
		{"Verification rate (%)", st.VerificationRate.InexactFloat64()},
		{"States", st.States},
		{"Unknown state", st.UnknownState},
	}
	for _, s := range st.AgeShares {
		rows = append(rows, []any{"Age " + string(s.Category) + " (%)", s.Share.InexactFloat64()})
	}
	if st.LastImport != nil {
		rows = append(rows, []any{"Last import", st.LastImport.Filename + " (" + st.LastImport.Status + ")"})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(OverviewSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(OverviewSheet, "A1", "B1", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(OverviewSheet, "A", "A", 28)
}

func (e *Exporter) writeDimension(ctx context.Context, f *excelize.File, dim model.Dimension, headerStyle int) error {
	titles, ok := sheetTitles[dim]
	if !ok {
		return fmt.Errorf("unknown summary dimension: %q", dim)
	}
	rep, err := e.reports.Summaries(ctx, dim, report.SummaryQuery{})
	if err != nil {
		return fmt.Errorf("failed to read %s summaries: %w", dim, err)
	}

	sheet := titles.sheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []any{titles.key1}
	if titles.key2 != "" {
		header = append(header, titles.key2)
	}
	header = append(header, "Total", "Verified", "Verification rate (%)", "Age known")
	for _, cat := range model.AgeCategories {
		if cat != model.AgeUnknown {
			header = append(header, string(cat))
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	write := func(rowNum int, key1, key2 string, c model.Counters, rate float64) error {
		row := []any{key1}
		if titles.key2 != "" {
			row = append(row, key2)
		}
		row = append(row, c.Total, c.Verified, rate, c.AgeKnown)
		for _, cat := range model.AgeCategories {
			if cat != model.AgeUnknown {
				row = append(row, c.Bucket(cat))
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		return f.SetSheetRow(sheet, cell, &row)
	}

	for i, r := range rep.Rows {
		if err := write(i+2, r.Key1, r.Key2, r.Counters, r.VerificationRate.InexactFloat64()); err != nil {
			return err
		}
	}
	if err := write(len(rep.Rows)+2, "TOTAL", "", rep.Totals, rep.VerificationRate.InexactFloat64()); err != nil {
		return err
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "B", 22)
}
