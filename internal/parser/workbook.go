package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"pensionhub/internal/model"
)

// ErrUnreadable 文件无法按 xlsx/xls/csv 任何一种格式读取
var ErrUnreadable = errors.New("unreadable spreadsheet")

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// LoadWorkbook 从文件路径读取工作簿
func LoadWorkbook(path string) (*model.RawWorkbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return LoadWorkbookBytes(filepath.Base(path), data)
}

// LoadWorkbookReader 从流读取工作簿
func LoadWorkbookReader(name string, r io.Reader) (*model.RawWorkbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return LoadWorkbookBytes(name, data)
}

// LoadWorkbookBytes 依次尝试 xlsx -> xls -> csv
// 扩展名只决定首选格式，内容不符时继续尝试其他格式
func LoadWorkbookBytes(name string, data []byte) (*model.RawWorkbook, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadable, name)
	}

	var errs []error
	if bytes.HasPrefix(data, zipMagic) {
		wb, err := loadXLSX(name, data)
		if err == nil {
			return wb, nil
		}
		errs = append(errs, fmt.Errorf("xlsx: %w", err))
	}
	if bytes.HasPrefix(data, oleMagic) {
		wb, err := loadXLS(name, data)
		if err == nil {
			return wb, nil
		}
		errs = append(errs, fmt.Errorf("xls: %w", err))
	}
	if len(errs) == 0 {
		wb, err := loadCSV(name, data)
		if err == nil {
			return wb, nil
		}
		errs = append(errs, fmt.Errorf("csv: %w", err))
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, errors.Join(errs...))
}

// loadXLSX 读取原始单元格值，日期保留为数值序列号
func loadXLSX(name string, data []byte) (*model.RawWorkbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &model.RawWorkbook{Filename: name}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		wb.Sheets = append(wb.Sheets, toRawSheet(sheetName, rows))
	}
	return wb, nil
}

// loadXLS 旧版 Excel，xlsReader 只能按路径打开，先写临时文件
func loadXLS(name string, data []byte) (*model.RawWorkbook, error) {
	tmp, err := os.CreateTemp("", "pensionhub-*.xls")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	book, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, err
	}

	wb := &model.RawWorkbook{Filename: name}
	for i := 0; i < book.GetNumberSheets(); i++ {
		sheet, err := book.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		var rows [][]string
		for _, xlsRow := range sheet.GetRows() {
			var vals []string
			for _, col := range xlsRow.GetCols() {
				vals = append(vals, col.GetString())
			}
			rows = append(rows, vals)
		}
		wb.Sheets = append(wb.Sheets, toRawSheet(sheet.GetName(), rows))
	}
	if len(wb.Sheets) == 0 {
		return nil, errors.New("no sheets found")
	}
	return wb, nil
}

func loadCSV(name string, data []byte) (*model.RawWorkbook, error) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	sheetName := strings.TrimSuffix(name, filepath.Ext(name))
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &model.RawWorkbook{
		Filename: name,
		Sheets:   []*model.RawSheet{toRawSheet(sheetName, rows)},
	}, nil
}

func toRawSheet(name string, rows [][]string) *model.RawSheet {
	sheet := &model.RawSheet{Name: name, Rows: make([][]model.Cell, len(rows))}
	for i, row := range rows {
		cells := make([]model.Cell, len(row))
		for j, v := range row {
			cells[j] = model.ParseCell(v)
		}
		sheet.Rows[i] = cells
	}
	return sheet
}
