package model

// CanonicalField 规范字段名
type CanonicalField string

const (
	FieldPPONumber     CanonicalField = "ppo_number"
	FieldPensionerName CanonicalField = "pensioner_name"
	FieldDateOfBirth   CanonicalField = "date_of_birth"
	FieldPSA           CanonicalField = "psa"
	FieldPDA           CanonicalField = "pda"
	FieldBankName      CanonicalField = "bank_name"
	FieldBranchName    CanonicalField = "branch_name"
	FieldBranchCode    CanonicalField = "branch_code"
	FieldPincode       CanonicalField = "pincode"
	FieldState         CanonicalField = "state"
	FieldDistrict      CanonicalField = "district"
	FieldCity          CanonicalField = "city"
	FieldAddressLine1  CanonicalField = "address_line1"
	FieldAddressLine2  CanonicalField = "address_line2"
	FieldVerified      CanonicalField = "verified"
	FieldAgeBelow80    CanonicalField = "age_less_than_80"
	FieldAgeAbove80    CanonicalField = "age_more_than_80"
	FieldGrandTotal    CanonicalField = "grand_total"
)

// CanonicalFields 规范字段（固定顺序，映射时作为并列打破依据）
var CanonicalFields = []CanonicalField{
	FieldPPONumber,
	FieldPensionerName,
	FieldDateOfBirth,
	FieldPSA,
	FieldPDA,
	FieldBankName,
	FieldBranchName,
	FieldBranchCode,
	FieldPincode,
	FieldState,
	FieldDistrict,
	FieldCity,
	FieldAddressLine1,
	FieldAddressLine2,
	FieldVerified,
	FieldAgeBelow80,
	FieldAgeAbove80,
	FieldGrandTotal,
}

// IsCanonicalField 是否为已知规范字段
func IsCanonicalField(name string) bool {
	for _, f := range CanonicalFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// FieldOrder 字段在规范顺序中的位置，未知字段排在最后
func FieldOrder(f CanonicalField) int {
	for i, cf := range CanonicalFields {
		if cf == f {
			return i
		}
	}
	return len(CanonicalFields)
}

// MappingMode 映射方式
type MappingMode string

const (
	MappingAuto     MappingMode = "auto"
	MappingExplicit MappingMode = "explicit"
)

// FieldMapping 单个规范字段对应的源列
type FieldMapping struct {
	Column int     `json:"column"` // 0 起始列索引
	Header string  `json:"header"` // 源列表头
	Score  float64 `json:"score"`  // 0-100
}

// ColumnMapping 源列 -> 规范字段映射结果
type ColumnMapping struct {
	Profile         string                          `json:"profile"`
	Mode            MappingMode                     `json:"mode"`
	HeaderRow       int                             `json:"headerRow"`
	DataStartRow    int                             `json:"dataStartRow"`
	Fields          map[CanonicalField]FieldMapping `json:"fields"`
	Confidence      float64                         `json:"confidence"`
	Ambiguous       []CanonicalField                `json:"ambiguous,omitempty"`
	CompositeBranch bool                            `json:"compositeBranch"`
}

// NewColumnMapping 创建空映射
func NewColumnMapping(profile string, mode MappingMode) *ColumnMapping {
	return &ColumnMapping{
		Profile: profile,
		Mode:    mode,
		Fields:  make(map[CanonicalField]FieldMapping),
	}
}

// Column 返回字段对应的列索引
func (m *ColumnMapping) Column(f CanonicalField) (int, bool) {
	fm, ok := m.Fields[f]
	if !ok {
		return -1, false
	}
	return fm.Column, true
}

// Has 字段是否已映射
func (m *ColumnMapping) Has(f CanonicalField) bool {
	_, ok := m.Fields[f]
	return ok
}

// ColumnTaken 某列是否已被其他字段占用
func (m *ColumnMapping) ColumnTaken(col int) bool {
	for _, fm := range m.Fields {
		if fm.Column == col {
			return true
		}
	}
	return false
}

// RefreshConfidence 以已映射字段得分的均值作为整体置信度
func (m *ColumnMapping) RefreshConfidence() {
	if len(m.Fields) == 0 {
		m.Confidence = 0
		return
	}
	sum := 0.0
	for _, fm := range m.Fields {
		sum += fm.Score
	}
	m.Confidence = sum / float64(len(m.Fields))
}

// ManualPair 调用方提供的手工映射
type ManualPair struct {
	SourceColumn   string `json:"sourceColumn" yaml:"source_column"`
	CanonicalField string `json:"canonicalField" yaml:"canonical_field"`
}

// ManualMapping 手工映射请求（映射对 + 目标格式名）
type ManualMapping struct {
	Profile string       `json:"profile" yaml:"profile"`
	Pairs   []ManualPair `json:"pairs" yaml:"pairs"`
}
