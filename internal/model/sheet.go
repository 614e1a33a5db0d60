package model

import (
	"strconv"
	"strings"
)

// CellKind 单元格类型
type CellKind int

const (
	CellBlank CellKind = iota
	CellText
	CellNumber
)

// Cell 原始单元格（字符串/数值/空）；数值单元格同时保留源文本
type Cell struct {
	Kind CellKind
	Text string
	Num  float64
}

// TextCell 构造文本单元格，空白文本视为空单元格
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{Kind: CellBlank}
	}
	return Cell{Kind: CellText, Text: s}
}

// NumberCell 构造数值单元格
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Num: f}
}

// ParseCell 将读取到的原始字符串转换为单元格：能解析为数值的标记为数值，
// 源文本原样保留，键值类字段不经过浮点数往返
func ParseCell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Cell{Kind: CellBlank}
	}
	// 前导 0 的编码（如 PPO/邮编）保留为文本
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return Cell{Kind: CellText, Text: raw}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Cell{Kind: CellNumber, Num: f, Text: s}
	}
	return Cell{Kind: CellText, Text: raw}
}

// IsBlank 是否为空
func (c Cell) IsBlank() bool {
	return c.Kind == CellBlank
}

// String 单元格文本表示：优先返回源文本；无源文本的整数数值不带小数部分
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		if c.Text != "" {
			return c.Text
		}
		if c.Num == float64(int64(c.Num)) {
			return strconv.FormatInt(int64(c.Num), 10)
		}
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// RawSheet 一个工作表的原始网格
type RawSheet struct {
	Name string
	Rows [][]Cell
}

// Cell 取单元格，越界返回空单元格
func (s *RawSheet) Cell(row, col int) Cell {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return Cell{Kind: CellBlank}
	}
	return s.Rows[row][col]
}

// RowStrings 返回某一行的文本表示
func (s *RawSheet) RowStrings(row int) []string {
	if row < 0 || row >= len(s.Rows) {
		return nil
	}
	out := make([]string, len(s.Rows[row]))
	for i, c := range s.Rows[row] {
		out[i] = c.String()
	}
	return out
}

// RawWorkbook 一次上传文件解析出的全部工作表
type RawWorkbook struct {
	Filename string
	Sheets   []*RawSheet
}

// Sheet 按名称查找工作表
func (wb *RawWorkbook) Sheet(name string) *RawSheet {
	for _, s := range wb.Sheets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// IsBlankRow 整行是否为空
func IsBlankRow(row []Cell) bool {
	for _, c := range row {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}
