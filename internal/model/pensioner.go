package model

import "time"

// AgeCategory 年龄段
type AgeCategory string

const (
	AgeBelow50    AgeCategory = "<50"
	Age50To60     AgeCategory = "50-60"
	Age60To70     AgeCategory = "60-70"
	Age70To80     AgeCategory = "70-80"
	Age80To90     AgeCategory = "80-90"
	Age90Plus     AgeCategory = "90+"
	AgeUnknown    AgeCategory = "unknown"
	UnknownRegion             = "Unknown"
	DateLayout                = "2006-01-02"
)

// AgeCategories 已知年龄段（升序）
var AgeCategories = []AgeCategory{AgeBelow50, Age50To60, Age60To70, Age70To80, Age80To90, Age90Plus}

// CategorizeAge 年龄分段：左闭右开，边界值归入较高一档，最后一档无上限
func CategorizeAge(age *int) AgeCategory {
	if age == nil {
		return AgeUnknown
	}
	switch a := *age; {
	case a < 50:
		return AgeBelow50
	case a < 60:
		return Age50To60
	case a < 70:
		return Age60To70
	case a < 80:
		return Age70To80
	case a < 90:
		return Age80To90
	default:
		return Age90Plus
	}
}

// PensionerRecord 规范化后的养老金领取人记录
type PensionerRecord struct {
	PPONumber     string      `json:"ppoNumber"`
	PensionerName string      `json:"pensionerName"`
	DateOfBirth   *time.Time  `json:"dateOfBirth,omitempty"`
	DOBSentinel   string      `json:"dobSentinel,omitempty"` // CIVIL/RAILWAY/DEFENCE
	Age           *int        `json:"age,omitempty"`
	AgeCategory   AgeCategory `json:"ageCategory"`

	PSA        string `json:"psa"`
	PDA        string `json:"pda"`
	BankName   string `json:"bankName"`
	BranchName string `json:"branchName"`
	BranchCode string `json:"branchCode"`

	Pincode  string `json:"pincode"`
	State    string `json:"state"`
	District string `json:"district"`
	City     string `json:"city"`
	Address  string `json:"address"`

	Verified bool `json:"verified"`

	// Dashboard 格式字段
	AgeLessThan80 *int `json:"ageLessThan80,omitempty"`
	AgeMoreThan80 *int `json:"ageMoreThan80,omitempty"`
	GrandTotal    *int `json:"grandTotal,omitempty"`

	SourceFormat string    `json:"sourceFormat"`
	SourceFile   string    `json:"sourceFile"`
	SourceSheet  string    `json:"sourceSheet"`
	SourceRow    int       `json:"sourceRow"`
	BatchID      string    `json:"batchId"`
	IngestedAt   time.Time `json:"ingestedAt"`
}

// DOBString 出生日期的存储格式，未知时为空
func (r *PensionerRecord) DOBString() string {
	if r.DateOfBirth == nil {
		return ""
	}
	return r.DateOfBirth.Format(DateLayout)
}
