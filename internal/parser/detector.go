package parser

import (
	"fmt"

	"pensionhub/internal/model"
)

// DefaultProbeRows 表头探测行数
const DefaultProbeRows = 10

// Detection 格式识别结果
type Detection struct {
	SheetName  string               `json:"sheetName"`
	Profile    *model.FormatProfile `json:"-"`
	HeaderRow  int                  `json:"headerRow"`  // 0 起始
	HeaderRows int                  `json:"headerRows"` // 拆分表头为 2
	Headers    []string             `json:"headers"`    // 合并后的列标签（拆分表头为 "分组/字段"）
	Leaves     []string             `json:"-"`          // 字段行标签
}

// ProfileName 识别出的格式名
func (d *Detection) ProfileName() string {
	if d.Profile == nil {
		return ""
	}
	return d.Profile.Name
}

// DataStartRow 数据起始行
func (d *Detection) DataStartRow() int {
	return d.HeaderRow + d.HeaderRows
}

// Detector 格式识别器
type Detector struct {
	profiles  []*model.FormatProfile
	generic   *model.FormatProfile
	probeRows int
	mapper    *Mapper
}

// NewDetector 创建识别器，profiles 需按优先级排好序
func NewDetector(profiles []*model.FormatProfile, probeRows int, mapper *Mapper) *Detector {
	if probeRows <= 0 {
		probeRows = DefaultProbeRows
	}
	return &Detector{
		profiles:  profiles,
		generic:   GenericProfile(),
		probeRows: probeRows,
		mapper:    mapper,
	}
}

// Profiles 全部已知格式（不含兜底格式）
func (d *Detector) Profiles() []*model.FormatProfile {
	return d.profiles
}

// Profile 按名称查找格式
func (d *Detector) Profile(name string) *model.FormatProfile {
	if name == ProfileGeneric {
		return d.generic
	}
	for _, p := range d.profiles {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Detect 识别工作表格式：格式按优先级外层循环，探测行内层循环，首个命中即返回；
// 均不命中时退回模糊匹配
func (d *Detector) Detect(sheet *model.RawSheet) (*Detection, error) {
	limit := d.probeLimit(sheet)
	if limit == 0 {
		return nil, &FormatError{Sheet: sheet.Name, Reason: "sheet is empty"}
	}

	for _, p := range d.profiles {
		if det, ok := d.locate(sheet, p, limit); ok {
			return det, nil
		}
	}

	for row := 0; row < limit; row++ {
		labels := sheet.RowStrings(row)
		m := model.NewColumnMapping(ProfileGeneric, model.MappingAuto)
		d.mapper.fuzzyAssign(m, labels)
		if m.Has(model.FieldPPONumber) && len(m.Fields) >= 3 {
			return &Detection{
				SheetName:  sheet.Name,
				Profile:    d.generic,
				HeaderRow:  row,
				HeaderRows: 1,
				Headers:    labels,
				Leaves:     labels,
			}, nil
		}
	}

	return nil, &FormatError{
		Sheet:  sheet.Name,
		Reason: fmt.Sprintf("no header marker found in first %d rows", d.probeRows),
	}
}

// DetectWith 按指定格式定位表头（手工指定格式时使用）
func (d *Detector) DetectWith(sheet *model.RawSheet, profile *model.FormatProfile) (*Detection, error) {
	if profile.Generic {
		return d.Detect(sheet)
	}
	if det, ok := d.locate(sheet, profile, d.probeLimit(sheet)); ok {
		return det, nil
	}
	return nil, &FormatError{
		Sheet:  sheet.Name,
		Reason: fmt.Sprintf("header of profile %s not found in first %d rows", profile.Name, d.probeRows),
	}
}

func (d *Detector) probeLimit(sheet *model.RawSheet) int {
	if len(sheet.Rows) < d.probeRows {
		return len(sheet.Rows)
	}
	return d.probeRows
}

// locate 在探测区内查找格式的表头行
func (d *Detector) locate(sheet *model.RawSheet, p *model.FormatProfile, limit int) (*Detection, bool) {
	for row := 0; row < limit; row++ {
		if p.Locator.SplitHeader() {
			if row+1 >= len(sheet.Rows) {
				break
			}
			groups := forwardFill(sheet.RowStrings(row))
			leaves := sheet.RowStrings(row + 1)
			if !containsAll(groups, p.Locator.GroupLabels) || !matchesRow(leaves, p.Locator) {
				continue
			}
			return &Detection{
				SheetName:  sheet.Name,
				Profile:    p,
				HeaderRow:  row,
				HeaderRows: 2,
				Headers:    combineLabels(groups, leaves),
				Leaves:     padTo(leaves, len(groups)),
			}, true
		}

		labels := sheet.RowStrings(row)
		if !matchesRow(labels, p.Locator) {
			continue
		}
		return &Detection{
			SheetName:  sheet.Name,
			Profile:    p,
			HeaderRow:  row,
			HeaderRows: 1,
			Headers:    labels,
			Leaves:     labels,
		}, true
	}
	return nil, false
}

// matchesRow 标记全部出现，且列数（如有要求）一致
func matchesRow(labels []string, loc model.HeaderLocator) bool {
	if len(loc.Markers) > 0 && !containsAll(labels, loc.Markers) {
		return false
	}
	if loc.ColumnCount > 0 && nonBlankCount(labels) != loc.ColumnCount {
		return false
	}
	return true
}

func containsAll(labels, wanted []string) bool {
	for _, w := range wanted {
		found := false
		for _, l := range labels {
			if HeaderEquals(l, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func nonBlankCount(labels []string) int {
	n := 0
	for _, l := range labels {
		if NormalizeHeader(l) != "" {
			n++
		}
	}
	return n
}

// forwardFill 合并单元格只有首格有值，向右填充
func forwardFill(labels []string) []string {
	out := make([]string, len(labels))
	current := ""
	for i, l := range labels {
		if c := CollapseSpaces(l); c != "" {
			current = c
		}
		out[i] = current
	}
	return out
}

func combineLabels(groups, leaves []string) []string {
	n := len(groups)
	if len(leaves) > n {
		n = len(leaves)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		g, l := "", ""
		if i < len(groups) {
			g = groups[i]
		}
		if i < len(leaves) {
			l = CollapseSpaces(leaves[i])
		}
		switch {
		case g != "" && l != "":
			out[i] = g + "/" + l
		case l != "":
			out[i] = l
		default:
			out[i] = g
		}
	}
	return out
}

func padTo(labels []string, n int) []string {
	if len(labels) >= n {
		return labels
	}
	out := make([]string, n)
	copy(out, labels)
	return out
}
