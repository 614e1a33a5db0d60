// Package normalizer 原始行 -> 规范化的养老金领取人记录
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pensionhub/internal/geo"
	"pensionhub/internal/model"
)

// ReasonMissingKey PPO 号为空
const ReasonMissingKey = "missing_key"

// RowRejected 行被拒绝（批次继续）
type RowRejected struct {
	Reason string
	Row    int
}

func (e *RowRejected) Error() string {
	return fmt.Sprintf("row %d rejected: %s", e.Row, e.Reason)
}

// 出生日期列中的类别占位值
var dobSentinels = map[string]string{
	"CIVIL":   "CIVIL",
	"RAILWAY": "RAILWAY",
	"DEFENCE": "DEFENCE",
	"DEFENSE": "DEFENCE",
}

var verifiedTokens = map[string]bool{
	"Y": true, "YES": true, "TRUE": true, "1": true, "VERIFIED": true,
	"DONE": true, "SUBMITTED": true, "DLC": true, "RECEIVED": true,
}

// Source 记录来源
type Source struct {
	File    string
	Sheet   string
	Row     int // 1 起始（与表格行号一致）
	BatchID string
}

// Normalizer 行规范化器；无副作用
type Normalizer struct {
	geo *geo.Resolver
	now func() time.Time
}

// Option 构造选项
type Option func(*Normalizer)

// WithClock 注入当前时间（年龄计算）
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New 创建规范化器
func New(resolver *geo.Resolver, opts ...Option) *Normalizer {
	n := &Normalizer{geo: resolver, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize 将一行原始单元格转换为记录；缺少 PPO 号返回 *RowRejected
func (n *Normalizer) Normalize(row []model.Cell, m *model.ColumnMapping, src Source) (*model.PensionerRecord, error) {
	get := func(f model.CanonicalField) model.Cell {
		col, ok := m.Column(f)
		if !ok || col < 0 || col >= len(row) {
			return model.Cell{}
		}
		return row[col]
	}
	text := func(f model.CanonicalField) string {
		return cleanText(get(f).String())
	}

	ppo := text(model.FieldPPONumber)
	if ppo == "" {
		return nil, &RowRejected{Reason: ReasonMissingKey, Row: src.Row}
	}

	now := n.now()
	rec := &model.PensionerRecord{
		PPONumber:     ppo,
		PensionerName: text(model.FieldPensionerName),
		PSA:           text(model.FieldPSA),
		PDA:           text(model.FieldPDA),
		BankName:      text(model.FieldBankName),
		BranchCode:    text(model.FieldBranchCode),
		Pincode:       pincodeText(get(model.FieldPincode)),
		City:          text(model.FieldCity),
		Verified:      verifiedTokens[text(model.FieldVerified)],
		AgeLessThan80: intCell(get(model.FieldAgeBelow80)),
		AgeMoreThan80: intCell(get(model.FieldAgeAbove80)),
		GrandTotal:    intCell(get(model.FieldGrandTotal)),
		SourceFormat:  m.Profile,
		SourceFile:    src.File,
		SourceSheet:   src.Sheet,
		SourceRow:     src.Row,
		BatchID:       src.BatchID,
		IngestedAt:    now.UTC(),
	}

	n.fillBirth(rec, get(model.FieldDateOfBirth), now)

	branch := text(model.FieldBranchName)
	rec.BranchName = branch
	if m.CompositeBranch && rec.BankName != "" && branch != "" {
		rec.BranchName = rec.BankName + " - " + branch
	}

	rec.State = text(model.FieldState)
	if rec.State == "" {
		rec.State = n.geo.ResolveState(rec.Pincode)
	}
	rec.District = n.geo.ResolveDistrict(rec.Pincode, text(model.FieldDistrict))

	rec.Address = joinNonBlank(
		text(model.FieldAddressLine1),
		text(model.FieldAddressLine2),
		rec.City,
		text(model.FieldDistrict),
		text(model.FieldState),
		rec.Pincode,
	)
	// 城市没有邮编对照，未提供时记为 Unknown
	if rec.City == "" {
		rec.City = geo.Unknown
	}
	return rec, nil
}

// fillBirth 出生日期、年龄、年龄段
func (n *Normalizer) fillBirth(rec *model.PensionerRecord, cell model.Cell, now time.Time) {
	rec.AgeCategory = model.AgeUnknown

	var (
		dob time.Time
		ok  bool
	)
	switch cell.Kind {
	case model.CellNumber:
		dob, ok = SerialToDate(cell.Num)
	case model.CellText:
		token := cleanText(cell.Text)
		if s, isSentinel := dobSentinels[token]; isSentinel {
			rec.DOBSentinel = s
			return
		}
		dob, ok = ParseDate(cell.Text)
		// 两位年份落在未来时视为上一个世纪
		if ok && dob.Year() > now.Year() {
			dob = dob.AddDate(-100, 0, 0)
		}
	}
	if !ok {
		return
	}

	rec.DateOfBirth = &dob
	age := AgeAt(dob, now)
	if age < 0 {
		return
	}
	rec.Age = &age
	rec.AgeCategory = model.CategorizeAge(rec.Age)
}

// GeographyUnresolved 邦或行政区无法解析
func GeographyUnresolved(rec *model.PensionerRecord) bool {
	return rec.State == geo.Unknown || rec.District == geo.Unknown
}

// pincodeText 邮编；数值单元格按整数输出（旧版 xls 读出 "411001.0" 之类）
func pincodeText(c model.Cell) string {
	if c.Kind == model.CellNumber && c.Num == math.Trunc(c.Num) && math.Abs(c.Num) < 1e15 {
		return strconv.FormatInt(int64(c.Num), 10)
	}
	return cleanText(c.String())
}

// cleanText 去除首尾空白、压缩内部空白并转大写
func cleanText(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func intCell(c model.Cell) *int {
	switch c.Kind {
	case model.CellNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return nil
		}
		v := int(math.Round(c.Num))
		return &v
	case model.CellText:
		v, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(c.Text), ",", ""))
		if err != nil {
			return nil
		}
		return &v
	default:
		return nil
	}
}

func joinNonBlank(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
