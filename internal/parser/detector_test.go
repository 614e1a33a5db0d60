package parser

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pensionhub/internal/model"
)

// sheetOf 构造测试用工作表：string 按读取规则解析，数值直接作为数值单元格
func sheetOf(name string, rows ...[]any) *model.RawSheet {
	s := &model.RawSheet{Name: name}
	for _, row := range rows {
		cells := make([]model.Cell, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case string:
				cells[i] = model.ParseCell(x)
			case int:
				cells[i] = model.NumberCell(float64(x))
			case float64:
				cells[i] = model.NumberCell(x)
			default:
				cells[i] = model.Cell{}
			}
		}
		s.Rows = append(s.Rows, cells)
	}
	return s
}

func newTestDetector() (*Detector, *Mapper) {
	mapper := NewMapper(DefaultMinScore)
	return NewDetector(BuiltinProfiles(), DefaultProbeRows, mapper), mapper
}

func bobSheet() *model.RawSheet {
	return sheetOf("BOB",
		[]any{"Bank of Baroda pensioner list"},
		[]any{},
		[]any{"S.No", "PPO No.", "Name of Pensioner", "Date of Birth", "PSA", "PDA", "Bank Name", "Branch Name", "Pincode", "LC Status"},
		[]any{1, "BOB0001", "Ramesh Kumar", 20000, "State", "Treasury Pune", "Bank of Baroda", "Camp", "411001", "Y"},
	)
}

func TestDetect_BOB(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	det, err := d.Detect(bobSheet())
	require.NoError(t, err)
	assert.Equal(t, ProfileBOB, det.ProfileName())
	assert.Equal(t, 2, det.HeaderRow)
	assert.Equal(t, 3, det.DataStartRow())

	mapping := m.BuildMapping(det)
	col, ok := mapping.Column(model.FieldPPONumber)
	require.True(t, ok)
	assert.Equal(t, 1, col)
	col, _ = mapping.Column(model.FieldVerified)
	assert.Equal(t, 9, col)
	assert.InDelta(t, 100, mapping.Confidence, 0.001)
	assert.False(t, mapping.Has(model.FieldGrandTotal))
}

func TestDetect_DashboardBeatsBOB(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("dash",
		[]any{"PPO No.", "Pensioner Name", "Bank", "Branch", "Pincode", "Age Less Than 80", "Age More Than 80", "Grand Total"},
		[]any{"D1", "A", "SBI", "MG Road", "560001", 1, 0, 1},
	)
	det, err := d.Detect(sheet)
	require.NoError(t, err)
	assert.Equal(t, ProfileDashboard, det.ProfileName())

	mapping := m.BuildMapping(det)
	for _, f := range []model.CanonicalField{model.FieldAgeBelow80, model.FieldAgeAbove80, model.FieldGrandTotal, model.FieldBankName} {
		assert.True(t, mapping.Has(f), "field %s", f)
	}
}

func TestDetect_UBI(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("ubi",
		[]any{"PPO NUMBER", "PENSIONER NAME", "DOB", "PENSIONER TYPE", "DISBURSING AUTHORITY", "BANK", "BRANCH", "BRANCH CODE", "CITY", "DISTRICT", "STATE", "PIN CODE", "LIFE CERTIFICATE"},
	)
	det, err := d.Detect(sheet)
	require.NoError(t, err)
	require.Equal(t, ProfileUBI, det.ProfileName())

	mapping := m.BuildMapping(det)
	assert.Len(t, mapping.Fields, 13)
	col, _ := mapping.Column(model.FieldPSA)
	assert.Equal(t, 3, col)
	col, _ = mapping.Column(model.FieldBranchCode)
	assert.Equal(t, 7, col)
}

func TestDetect_SplitHeader(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("bom",
		[]any{"Bank of Maharashtra"},
		[]any{"Pensioner Details", "", "", "", "", "Branch Details", "", "", "Address", "", "", "", "", ""},
		[]any{"PPO No", "Name", "Date of Birth", "PSA", "PDA", "Bank", "Branch", "IFSC", "Address Line 1", "Address Line 2", "City", "District", "State", "Pincode"},
		[]any{"MH1", "Sita", "01/02/1950", "State", "Treasury", "Bank of Maharashtra", "Shivajinagar", "MAHB0000001", "12 FC Road", "", "Pune", "Pune", "Maharashtra", "411005"},
	)
	det, err := d.Detect(sheet)
	require.NoError(t, err)
	assert.Equal(t, ProfileBankOfMaharashtra, det.ProfileName())
	assert.Equal(t, 1, det.HeaderRow)
	assert.Equal(t, 2, det.HeaderRows)
	assert.Equal(t, "Branch Details/IFSC", det.Headers[7])

	mapping := m.BuildMapping(det)
	assert.True(t, mapping.CompositeBranch)
	assert.Equal(t, 3, mapping.DataStartRow)
	want := map[model.CanonicalField]int{
		model.FieldPPONumber:    0,
		model.FieldBankName:     5,
		model.FieldBranchName:   6,
		model.FieldBranchCode:   7,
		model.FieldAddressLine1: 8,
		model.FieldState:        12,
		model.FieldPincode:      13,
	}
	for f, c := range want {
		got, ok := mapping.Column(f)
		if !ok || got != c {
			t.Fatalf("field %s: want col %d got %d (mapped=%v)", f, c, got, ok)
		}
	}
}

func TestDetect_GenericFallback(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("misc",
		[]any{"Pension data"},
		[]any{"PPO No.", "DOB", "PSA", "PDA", "Bank", "Branch", "Pincode"},
		[]any{"PPO1", 25569, "Civil", "Treasury", "SBI", "MG Road", "110001"},
	)
	det, err := d.Detect(sheet)
	require.NoError(t, err)
	assert.Equal(t, ProfileGeneric, det.ProfileName())
	assert.Equal(t, 1, det.HeaderRow)

	mapping := m.BuildMapping(det)
	assert.Equal(t, model.MappingAuto, mapping.Mode)
	want := []model.CanonicalField{
		model.FieldPPONumber, model.FieldDateOfBirth, model.FieldPSA, model.FieldPDA,
		model.FieldBankName, model.FieldBranchName, model.FieldPincode,
	}
	for i, f := range want {
		col, ok := mapping.Column(f)
		require.True(t, ok, "field %s", f)
		assert.Equal(t, i, col, "field %s", f)
	}
	assert.InDelta(t, 100, mapping.Confidence, 0.001)
}

func TestDetect_NoHeader(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector()
	sheet := sheetOf("notes",
		[]any{"Quarterly remarks"},
		[]any{"foo", "bar", "baz"},
		[]any{1, 2, 3},
	)
	_, err := d.Detect(sheet)
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "want FormatError, got %v", err)
	assert.Equal(t, "notes", fe.Sheet)

	_, err = d.Detect(&model.RawSheet{Name: "empty"})
	require.True(t, errors.As(err, &fe))
}

func TestDetect_MarkerOutsideProbeRegion(t *testing.T) {
	t.Parallel()

	mapper := NewMapper(DefaultMinScore)
	d := NewDetector(BuiltinProfiles(), 3, mapper)
	sheet := sheetOf("late",
		[]any{"a"}, []any{"b"}, []any{"c"},
		[]any{"PPO NUMBER", "PENSIONER NAME", "DOB"},
	)
	_, err := d.Detect(sheet)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := bobSheet()
	first, err := d.Detect(sheet)
	require.NoError(t, err)
	firstMapping := m.BuildMapping(first)
	for i := 0; i < 5; i++ {
		det, err := d.Detect(sheet)
		require.NoError(t, err)
		if !reflect.DeepEqual(first, det) {
			t.Fatalf("detection differs on run %d", i)
		}
		if !reflect.DeepEqual(firstMapping, m.BuildMapping(det)) {
			t.Fatalf("mapping differs on run %d", i)
		}
	}
}

func TestFuzzyAssign_AmbiguousFieldLeftUnmapped(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("dup",
		[]any{"PPO No", "DOB", "Bank", "Bank", "Pincode"},
	)
	det, err := d.Detect(sheet)
	require.NoError(t, err)

	mapping := m.BuildMapping(det)
	assert.False(t, mapping.Has(model.FieldBankName))
	assert.Contains(t, mapping.Ambiguous, model.FieldBankName)
	assert.True(t, mapping.Has(model.FieldPincode))
}

func TestBuildExplicitMapping(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("manual",
		[]any{"Order", "Born", "Postal"},
		[]any{"X1", "12/03/1948", "400001"},
	)
	mapping, err := m.BuildExplicitMapping(sheet, model.ManualMapping{
		Pairs: []model.ManualPair{
			{SourceColumn: "Order", CanonicalField: "ppo_number"},
			{SourceColumn: "b", CanonicalField: "date_of_birth"},
			{SourceColumn: "Postal", CanonicalField: "pincode"},
		},
	}, d)
	require.NoError(t, err)
	assert.Equal(t, model.MappingExplicit, mapping.Mode)
	assert.Equal(t, ManualProfile, mapping.Profile)
	assert.Equal(t, 100.0, mapping.Confidence)
	assert.Equal(t, 1, mapping.DataStartRow)
	col, _ := mapping.Column(model.FieldDateOfBirth)
	assert.Equal(t, 1, col)
}

func TestBuildExplicitMapping_Errors(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	sheet := sheetOf("manual", []any{"Order", "Born"})
	cases := []struct {
		name  string
		pairs []model.ManualPair
	}{
		{"unknown field", []model.ManualPair{{SourceColumn: "Order", CanonicalField: "favourite_colour"}}},
		{"duplicate field", []model.ManualPair{{SourceColumn: "Order", CanonicalField: "ppo_number"}, {SourceColumn: "Born", CanonicalField: "ppo_number"}}},
		{"missing column", []model.ManualPair{{SourceColumn: "Pension Order Ref", CanonicalField: "ppo_number"}}},
		{"column reused", []model.ManualPair{{SourceColumn: "Order", CanonicalField: "ppo_number"}, {SourceColumn: "A", CanonicalField: "pensioner_name"}}},
		{"empty", nil},
	}
	for _, tc := range cases {
		_, err := m.BuildExplicitMapping(sheet, model.ManualMapping{Pairs: tc.pairs}, d)
		var me *MappingError
		if !errors.As(err, &me) {
			t.Fatalf("%s: want MappingError, got %v", tc.name, err)
		}
	}
}

func TestBuildExplicitMapping_NamedProfileHeader(t *testing.T) {
	t.Parallel()

	d, m := newTestDetector()
	mapping, err := m.BuildExplicitMapping(bobSheet(), model.ManualMapping{
		Profile: ProfileBOB,
		Pairs: []model.ManualPair{
			{SourceColumn: "PPO No.", CanonicalField: "ppo_number"},
			{SourceColumn: "I", CanonicalField: "pincode"},
		},
	}, d)
	require.NoError(t, err)
	assert.Equal(t, ProfileBOB, mapping.Profile)
	assert.Equal(t, 2, mapping.HeaderRow)
	assert.Equal(t, 3, mapping.DataStartRow)
	col, _ := mapping.Column(model.FieldPincode)
	assert.Equal(t, 8, col)
}
