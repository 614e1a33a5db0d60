package model

// HeaderLocator 表头定位规则
type HeaderLocator struct {
	// Markers 表头行必须包含的单元格（规范化后相等）；拆分表头时在字段行中查找
	Markers []string `json:"markers" yaml:"markers"`
	// ColumnCount 表头行非空单元格数，0 表示不限制
	ColumnCount int `json:"columnCount,omitempty" yaml:"column_count"`
	// GroupLabels 拆分表头：第 i 行为分组标签，第 i+1 行为字段标签
	GroupLabels []string `json:"groupLabels,omitempty" yaml:"group_labels"`
}

// SplitHeader 是否为两行拆分表头
func (l HeaderLocator) SplitHeader() bool {
	return len(l.GroupLabels) > 0
}

// FormatProfile 已知来源格式
type FormatProfile struct {
	Name     string        `json:"name" yaml:"name"`
	Priority int           `json:"priority" yaml:"priority"`
	Locator  HeaderLocator `json:"locator" yaml:"locator"`
	// Aliases 规范字段 -> 表头别名；"分组/字段" 形式用于拆分表头
	Aliases         map[CanonicalField][]string `json:"aliases" yaml:"aliases"`
	CompositeBranch bool                        `json:"compositeBranch" yaml:"composite_branch"`
	// Generic 兜底格式，只做模糊匹配
	Generic bool `json:"generic" yaml:"-"`
}
