package store

import (
	"fmt"
	"strings"
)

// Column 可用于过滤/分组的明细表列（白名单）
type Column string

const (
	ColState       Column = "state"
	ColDistrict    Column = "district"
	ColPincode     Column = "pincode"
	ColBank        Column = "bank_name"
	ColBranch      Column = "branch_name"
	ColPDA         Column = "pda"
	ColPSA         Column = "psa"
	ColAgeCategory Column = "age_category"
	ColVerified    Column = "verified"
	ColFormat      Column = "source_format"
	ColBatch       Column = "batch_id"
)

// 对外字段名 -> 列
var columnNames = map[string]Column{
	"state":         ColState,
	"district":      ColDistrict,
	"pincode":       ColPincode,
	"bank":          ColBank,
	"bank_name":     ColBank,
	"branch":        ColBranch,
	"branch_name":   ColBranch,
	"pda":           ColPDA,
	"psa":           ColPSA,
	"age_category":  ColAgeCategory,
	"verified":      ColVerified,
	"source_format": ColFormat,
	"batch_id":      ColBatch,
}

// ParseColumn 校验外部传入的字段名
func ParseColumn(name string) (Column, error) {
	c, ok := columnNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported field: %q", name)
	}
	return c, nil
}

// SelectBuilder 参数化 SELECT 构造器：列名只来自类型化常量，值一律走占位符
type SelectBuilder struct {
	dialect Dialect
	table   string
	exprs   []string
	conds   []string
	args    []any
	groupBy []string
	orderBy []string
	limit   int
	offset  int
}

// Select 开始构造查询
func Select(d Dialect, table string, exprs ...string) *SelectBuilder {
	return &SelectBuilder{dialect: d, table: table, exprs: exprs}
}

// WhereEq 追加 col = ? 条件
func (b *SelectBuilder) WhereEq(col Column, v any) *SelectBuilder {
	b.conds = append(b.conds, string(col)+" = ?")
	b.args = append(b.args, v)
	return b
}

// GroupBy 分组列
func (b *SelectBuilder) GroupBy(cols ...Column) *SelectBuilder {
	for _, c := range cols {
		b.groupBy = append(b.groupBy, string(c))
	}
	return b
}

// OrderBy 排序表达式（调用方常量）
func (b *SelectBuilder) OrderBy(exprs ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

// Page 分页，limit<=0 表示不限
func (b *SelectBuilder) Page(limit, offset int) *SelectBuilder {
	b.limit, b.offset = limit, offset
	return b
}

// Build 生成 SQL 与参数
func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.exprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	if len(b.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conds, " AND "))
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	args := append([]any(nil), b.args...)
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
		if b.offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, b.offset)
		}
	}
	return rebind(b.dialect, sb.String()), args
}

// PensionerFilter 明细查询条件，nil 表示不过滤
type PensionerFilter struct {
	State       *string
	District    *string
	Pincode     *string
	Bank        *string
	PDA         *string
	PSA         *string
	AgeCategory *string
	Verified    *bool
	BatchID     *string
	Limit       int
	Offset      int
}

// apply 将过滤条件写入构造器
func (f PensionerFilter) apply(b *SelectBuilder) *SelectBuilder {
	eq := func(col Column, v *string) {
		if v != nil {
			b.WhereEq(col, *v)
		}
	}
	eq(ColState, f.State)
	eq(ColDistrict, f.District)
	eq(ColPincode, f.Pincode)
	eq(ColBank, f.Bank)
	eq(ColPDA, f.PDA)
	eq(ColPSA, f.PSA)
	eq(ColAgeCategory, f.AgeCategory)
	eq(ColBatch, f.BatchID)
	if f.Verified != nil {
		v := 0
		if *f.Verified {
			v = 1
		}
		b.WhereEq(ColVerified, v)
	}
	return b
}
