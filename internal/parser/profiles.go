package parser

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"pensionhub/internal/model"
)

// 内置格式名称
const (
	ProfileBankOfMaharashtra = "BankOfMaharashtra-split-header"
	ProfileDashboard         = "Dashboard"
	ProfileBOB               = "BOB"
	ProfileUBI               = "UBI"
	ProfileGeneric           = "Generic"
)

// Synonyms 规范字段的常见表头写法，用于模糊匹配
var Synonyms = map[model.CanonicalField][]string{
	model.FieldPPONumber:     {"ppo no", "ppo number", "ppo", "ppo num", "pension payment order", "pension payment order no"},
	model.FieldPensionerName: {"pensioner name", "name of pensioner", "name", "pensioner"},
	model.FieldDateOfBirth:   {"date of birth", "dob", "birth date", "d o b"},
	model.FieldPSA:           {"psa", "pension sanctioning authority", "pensioner type", "pension type", "category"},
	model.FieldPDA:           {"pda", "pension disbursing authority", "disbursing authority", "treasury"},
	model.FieldBankName:      {"bank", "bank name", "name of bank"},
	model.FieldBranchName:    {"branch", "branch name", "name of branch"},
	model.FieldBranchCode:    {"branch code", "ifsc", "ifsc code", "sol id"},
	model.FieldPincode:       {"pincode", "pin code", "pin", "postal code", "zip code"},
	model.FieldState:         {"state", "state name"},
	model.FieldDistrict:      {"district", "district name"},
	model.FieldCity:          {"city", "town", "city town"},
	model.FieldAddressLine1:  {"address line 1", "address1", "address"},
	model.FieldAddressLine2:  {"address line 2", "address2"},
	model.FieldVerified:      {"verified", "life certificate", "lc status", "verification status", "dlc status"},
	model.FieldAgeBelow80:    {"age less than 80", "below 80", "less than 80"},
	model.FieldAgeAbove80:    {"age more than 80", "above 80", "more than 80"},
	model.FieldGrandTotal:    {"grand total", "total"},
}

// BuiltinProfiles 内置格式（按优先级排列）
func BuiltinProfiles() []*model.FormatProfile {
	return []*model.FormatProfile{
		{
			Name:     ProfileBankOfMaharashtra,
			Priority: 10,
			Locator: model.HeaderLocator{
				Markers:     []string{"PPO No"},
				GroupLabels: []string{"Pensioner Details", "Branch Details", "Address"},
			},
			Aliases: map[model.CanonicalField][]string{
				model.FieldPPONumber:     {"Pensioner Details/PPO No"},
				model.FieldPensionerName: {"Pensioner Details/Name"},
				model.FieldDateOfBirth:   {"Pensioner Details/Date of Birth"},
				model.FieldPSA:           {"Pensioner Details/PSA"},
				model.FieldPDA:           {"Pensioner Details/PDA"},
				model.FieldBankName:      {"Branch Details/Bank"},
				model.FieldBranchName:    {"Branch Details/Branch"},
				model.FieldBranchCode:    {"Branch Details/IFSC"},
				model.FieldAddressLine1:  {"Address/Address Line 1"},
				model.FieldAddressLine2:  {"Address/Address Line 2"},
				model.FieldCity:          {"Address/City"},
				model.FieldDistrict:      {"Address/District"},
				model.FieldState:         {"Address/State"},
				model.FieldPincode:       {"Address/Pincode"},
			},
			CompositeBranch: true,
		},
		{
			Name:     ProfileDashboard,
			Priority: 20,
			Locator: model.HeaderLocator{
				Markers: []string{"PPO No.", "Grand Total"},
			},
			Aliases: map[model.CanonicalField][]string{
				model.FieldPPONumber:     {"PPO No."},
				model.FieldPensionerName: {"Pensioner Name"},
				model.FieldBankName:      {"Bank"},
				model.FieldBranchName:    {"Branch"},
				model.FieldPincode:       {"Pincode"},
				model.FieldAgeBelow80:    {"Age Less Than 80"},
				model.FieldAgeAbove80:    {"Age More Than 80"},
				model.FieldGrandTotal:    {"Grand Total"},
			},
		},
		{
			Name:     ProfileBOB,
			Priority: 30,
			Locator: model.HeaderLocator{
				Markers:     []string{"PPO No."},
				ColumnCount: 10,
			},
			Aliases: map[model.CanonicalField][]string{
				model.FieldPPONumber:     {"PPO No."},
				model.FieldPensionerName: {"Name of Pensioner"},
				model.FieldDateOfBirth:   {"Date of Birth"},
				model.FieldPSA:           {"PSA"},
				model.FieldPDA:           {"PDA"},
				model.FieldBankName:      {"Bank Name"},
				model.FieldBranchName:    {"Branch Name"},
				model.FieldPincode:       {"Pincode"},
				model.FieldVerified:      {"LC Status"},
			},
		},
		{
			Name:     ProfileUBI,
			Priority: 40,
			Locator: model.HeaderLocator{
				Markers: []string{"PPO NUMBER"},
			},
			Aliases: map[model.CanonicalField][]string{
				model.FieldPPONumber:     {"PPO NUMBER"},
				model.FieldPensionerName: {"PENSIONER NAME"},
				model.FieldDateOfBirth:   {"DOB"},
				model.FieldPSA:           {"PENSIONER TYPE"},
				model.FieldPDA:           {"DISBURSING AUTHORITY"},
				model.FieldBankName:      {"BANK"},
				model.FieldBranchName:    {"BRANCH"},
				model.FieldBranchCode:    {"BRANCH CODE"},
				model.FieldCity:          {"CITY"},
				model.FieldDistrict:      {"DISTRICT"},
				model.FieldState:         {"STATE"},
				model.FieldPincode:       {"PIN CODE"},
				model.FieldVerified:      {"LIFE CERTIFICATE"},
			},
		},
	}
}

// GenericProfile 兜底格式
func GenericProfile() *model.FormatProfile {
	return &model.FormatProfile{
		Name:     ProfileGeneric,
		Priority: 1 << 30,
		Generic:  true,
	}
}

// profilesFile 外部格式文件结构
type profilesFile struct {
	Profiles []*model.FormatProfile `yaml:"profiles"`
}

// LoadProfiles 读取 YAML 格式定义；同名格式覆盖内置格式，其余追加
func LoadProfiles(path string) ([]*model.FormatProfile, error) {
	profiles := BuiltinProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	var pf profilesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	for _, p := range pf.Profiles {
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		replaced := false
		for i, existing := range profiles {
			if existing.Name == p.Name {
				profiles[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			profiles = append(profiles, p)
		}
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
	return profiles, nil
}

func validateProfile(p *model.FormatProfile) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("profile without name")
	}
	if p.Name == ProfileGeneric {
		return fmt.Errorf("profile name %q is reserved", p.Name)
	}
	if len(p.Locator.Markers) == 0 && !p.Locator.SplitHeader() {
		return fmt.Errorf("profile %s: locator needs markers or group labels", p.Name)
	}
	for f := range p.Aliases {
		if !model.IsCanonicalField(string(f)) {
			return fmt.Errorf("profile %s: unknown canonical field %q", p.Name, f)
		}
	}
	return nil
}
