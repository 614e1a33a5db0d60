package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"pensionhub/internal/model"
)

// DefaultMinScore 模糊匹配最低得分
const DefaultMinScore = 60.0

// ManualProfile 未指定格式的手工映射名称
const ManualProfile = "Manual"

var columnLetterRe = regexp.MustCompile(`^[A-Za-z]{1,3}$`)

// Mapper 字段映射器
type Mapper struct {
	minScore float64
}

// NewMapper 创建字段映射器
func NewMapper(minScore float64) *Mapper {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Mapper{minScore: minScore}
}

// BuildMapping 自动映射：先按格式别名精确匹配，剩余字段再做模糊匹配
func (m *Mapper) BuildMapping(det *Detection) *model.ColumnMapping {
	p := det.Profile
	mapping := model.NewColumnMapping(p.Name, model.MappingAuto)
	mapping.HeaderRow = det.HeaderRow
	mapping.DataStartRow = det.DataStartRow()
	mapping.CompositeBranch = p.CompositeBranch

	if !p.Generic {
		for _, field := range model.CanonicalFields {
			aliases := p.Aliases[field]
			if len(aliases) == 0 {
				continue
			}
			if col, ok := findAliasColumn(det, aliases, mapping); ok {
				mapping.Fields[field] = model.FieldMapping{
					Column: col,
					Header: det.Headers[col],
					Score:  100,
				}
			}
		}
	}

	m.fuzzyAssign(mapping, det.Leaves)
	for field, fm := range mapping.Fields {
		if fm.Column < len(det.Headers) {
			fm.Header = det.Headers[fm.Column]
			mapping.Fields[field] = fm
		}
	}
	mapping.RefreshConfidence()
	return mapping
}

// findAliasColumn 别名含 "/" 时匹配 "分组/字段" 合并标签，否则匹配字段行标签
func findAliasColumn(det *Detection, aliases []string, mapping *model.ColumnMapping) (int, bool) {
	for _, alias := range aliases {
		labels := det.Leaves
		if strings.Contains(alias, "/") {
			labels = det.Headers
		}
		for col, label := range labels {
			if mapping.ColumnTaken(col) {
				continue
			}
			if HeaderEquals(label, alias) {
				return col, true
			}
		}
	}
	return 0, false
}

type candidate struct {
	field model.CanonicalField
	order int
	col   int
	score float64
}

// fuzzyAssign 为尚未映射的字段在空闲列上做贪心分配：
// 按 (得分降序, 字段顺序, 列升序) 依次取用；同一字段最高分落在两个空闲列上时记为歧义，不做映射
func (m *Mapper) fuzzyAssign(mapping *model.ColumnMapping, labels []string) {
	var cands []candidate
	for _, field := range model.CanonicalFields {
		if mapping.Has(field) {
			continue
		}
		for col, label := range labels {
			if mapping.ColumnTaken(col) {
				continue
			}
			score := FieldScore(label, Synonyms[field])
			if score < m.minScore {
				continue
			}
			cands = append(cands, candidate{field: field, order: model.FieldOrder(field), col: col, score: score})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.col < b.col
	})

	ambiguous := make(map[model.CanonicalField]bool)
	for i, c := range cands {
		if mapping.Has(c.field) || ambiguous[c.field] || mapping.ColumnTaken(c.col) {
			continue
		}
		tied := false
		for _, other := range cands[i+1:] {
			if other.score != c.score || other.field != c.field {
				continue
			}
			if !mapping.ColumnTaken(other.col) {
				tied = true
				break
			}
		}
		if tied {
			ambiguous[c.field] = true
			mapping.Ambiguous = append(mapping.Ambiguous, c.field)
			continue
		}
		mapping.Fields[c.field] = model.FieldMapping{Column: c.col, Header: labels[c.col], Score: c.score}
	}
}

// BuildExplicitMapping 手工映射：源列可以是表头文本，也可以是列字母（如 "C"）
// 指定格式时沿用其表头定位；否则在探测区中选取命中表头最多的行
func (m *Mapper) BuildExplicitMapping(sheet *model.RawSheet, manual model.ManualMapping, det *Detector) (*model.ColumnMapping, error) {
	seen := make(map[model.CanonicalField]bool, len(manual.Pairs))
	for _, pair := range manual.Pairs {
		field := model.CanonicalField(strings.TrimSpace(pair.CanonicalField))
		if !model.IsCanonicalField(string(field)) {
			return nil, &MappingError{Field: pair.CanonicalField, Column: pair.SourceColumn, Reason: "unknown canonical field"}
		}
		if seen[field] {
			return nil, &MappingError{Field: pair.CanonicalField, Column: pair.SourceColumn, Reason: "field mapped more than once"}
		}
		seen[field] = true
	}
	if len(manual.Pairs) == 0 {
		return nil, &MappingError{Reason: "no mapping pairs given"}
	}

	name := manual.Profile
	if name == "" {
		name = ManualProfile
	}
	mapping := model.NewColumnMapping(name, model.MappingExplicit)

	headerRow, headerRows, labels := m.explicitHeader(sheet, manual, det)
	mapping.HeaderRow = headerRow
	mapping.DataStartRow = headerRow + headerRows
	if p := det.Profile(manual.Profile); p != nil {
		mapping.CompositeBranch = p.CompositeBranch
	}

	for _, pair := range manual.Pairs {
		field := model.CanonicalField(strings.TrimSpace(pair.CanonicalField))
		col, ok := resolveSourceColumn(pair.SourceColumn, labels)
		if !ok {
			return nil, &MappingError{Field: pair.CanonicalField, Column: pair.SourceColumn, Reason: "source column not found"}
		}
		if mapping.ColumnTaken(col) {
			return nil, &MappingError{Field: pair.CanonicalField, Column: pair.SourceColumn, Reason: "source column mapped more than once"}
		}
		header := ""
		if col < len(labels) {
			header = labels[col]
		}
		mapping.Fields[field] = model.FieldMapping{Column: col, Header: header, Score: 100}
	}
	mapping.Confidence = 100
	return mapping, nil
}

// explicitHeader 手工映射的表头行
func (m *Mapper) explicitHeader(sheet *model.RawSheet, manual model.ManualMapping, det *Detector) (int, int, []string) {
	if p := det.Profile(manual.Profile); p != nil && !p.Generic {
		if d, err := det.DetectWith(sheet, p); err == nil {
			return d.HeaderRow, d.HeaderRows, d.Leaves
		}
	}

	bestRow, bestHits := 0, -1
	limit := det.probeLimit(sheet)
	for row := 0; row < limit; row++ {
		labels := sheet.RowStrings(row)
		hits := 0
		for _, pair := range manual.Pairs {
			for _, l := range labels {
				if HeaderEquals(l, pair.SourceColumn) {
					hits++
					break
				}
			}
		}
		if hits > bestHits {
			bestRow, bestHits = row, hits
		}
	}
	return bestRow, 1, sheet.RowStrings(bestRow)
}

// resolveSourceColumn 表头文本优先，其次按列字母解析
func resolveSourceColumn(source string, labels []string) (int, bool) {
	for col, l := range labels {
		if HeaderEquals(l, source) {
			return col, true
		}
	}
	s := strings.TrimSpace(source)
	if !columnLetterRe.MatchString(s) {
		return 0, false
	}
	n, err := excelize.ColumnNameToNumber(strings.ToUpper(s))
	if err != nil {
		return 0, false
	}
	return n - 1, true
}
