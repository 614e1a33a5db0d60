package model

import (
	"fmt"
	"time"
)

// Dimension 汇总维度
type Dimension string

const (
	DimState       Dimension = "state"
	DimDistrict    Dimension = "district" // state + district
	DimPincode     Dimension = "pincode"
	DimBank        Dimension = "bank"
	DimStateBank   Dimension = "state_bank" // state + bank
	DimPDA         Dimension = "pda"
	DimPSA         Dimension = "psa"
	DimAgeCategory Dimension = "age_category"
)

// Dimensions 全部汇总维度
var Dimensions = []Dimension{
	DimState,
	DimDistrict,
	DimPincode,
	DimBank,
	DimStateBank,
	DimPDA,
	DimPSA,
	DimAgeCategory,
}

// ParseDimension 解析维度名
func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown summary dimension: %q", s)
}

// DimensionOrder 维度在固定顺序中的位置
func DimensionOrder(d Dimension) int {
	for i, x := range Dimensions {
		if x == d {
			return i
		}
	}
	return len(Dimensions)
}

// Counters 汇总计数器
type Counters struct {
	Total      int64 `json:"total"`
	Verified   int64 `json:"verified"`
	AgeKnown   int64 `json:"ageKnown"`
	AgeBelow50 int64 `json:"ageBelow50"`
	Age50To60  int64 `json:"age50To60"`
	Age60To70  int64 `json:"age60To70"`
	Age70To80  int64 `json:"age70To80"`
	Age80To90  int64 `json:"age80To90"`
	Age90Plus  int64 `json:"age90Plus"`
}

// Add 累加另一组计数器
func (c *Counters) Add(o Counters) {
	c.Total += o.Total
	c.Verified += o.Verified
	c.AgeKnown += o.AgeKnown
	c.AgeBelow50 += o.AgeBelow50
	c.Age50To60 += o.Age50To60
	c.Age60To70 += o.Age60To70
	c.Age70To80 += o.Age70To80
	c.Age80To90 += o.Age80To90
	c.Age90Plus += o.Age90Plus
}

// Bucket 按年龄段取计数
func (c Counters) Bucket(cat AgeCategory) int64 {
	switch cat {
	case AgeBelow50:
		return c.AgeBelow50
	case Age50To60:
		return c.Age50To60
	case Age60To70:
		return c.Age60To70
	case Age70To80:
		return c.Age70To80
	case Age80To90:
		return c.Age80To90
	case Age90Plus:
		return c.Age90Plus
	default:
		return 0
	}
}

// incBucket 年龄段计数 +1
func (c *Counters) incBucket(cat AgeCategory) {
	switch cat {
	case AgeBelow50:
		c.AgeBelow50++
	case Age50To60:
		c.Age50To60++
	case Age60To70:
		c.Age60To70++
	case Age70To80:
		c.Age70To80++
	case Age80To90:
		c.Age80To90++
	case Age90Plus:
		c.Age90Plus++
	}
}

// RecordCounters 单条记录贡献的计数
func RecordCounters(rec *PensionerRecord) Counters {
	c := Counters{Total: 1}
	if rec.Verified {
		c.Verified = 1
	}
	if rec.Age != nil {
		c.AgeKnown = 1
		c.incBucket(CategorizeAge(rec.Age))
	}
	return c
}

// SummaryKey 汇总行主键
type SummaryKey struct {
	Dimension Dimension `json:"dimension"`
	Key1      string    `json:"key1"`
	Key2      string    `json:"key2"`
}

func (k SummaryKey) String() string {
	if k.Key2 == "" {
		return fmt.Sprintf("%s:%s", k.Dimension, k.Key1)
	}
	return fmt.Sprintf("%s:%s/%s", k.Dimension, k.Key1, k.Key2)
}

// SummaryRow 持久化的汇总行
type SummaryRow struct {
	SummaryKey
	Counters
	UpdatedAt time.Time `json:"updatedAt"`
}

// SummaryDelta 一条记录对某个汇总行的增量
type SummaryDelta struct {
	SummaryKey
	Counters
}

// KeysFor 记录在某一维度上的键；不参与该维度时返回 false
func KeysFor(dim Dimension, rec *PensionerRecord) (SummaryKey, bool) {
	k := SummaryKey{Dimension: dim}
	switch dim {
	case DimState:
		k.Key1 = rec.State
	case DimDistrict:
		k.Key1, k.Key2 = rec.State, rec.District
	case DimPincode:
		k.Key1 = rec.Pincode
	case DimBank:
		k.Key1 = rec.BankName
	case DimStateBank:
		k.Key1, k.Key2 = rec.State, rec.BankName
	case DimPDA:
		k.Key1 = rec.PDA
	case DimPSA:
		k.Key1 = rec.PSA
	case DimAgeCategory:
		// 年龄未知的记录不参与年龄段汇总
		if rec.Age == nil {
			return k, false
		}
		k.Key1 = string(CategorizeAge(rec.Age))
	default:
		return k, false
	}
	return k, true
}
