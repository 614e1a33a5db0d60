package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// 电子表格日期序列号起点
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// maxSerial 9999-12-31
const maxSerial = 2958465

// SerialToDate 电子表格日期序列号 -> 日期
// 起点 1899-12-30；沿用 1900-02-29 不存在的历史约定，序列号大于 59 时回退一天
// 0 -> 1899-12-30，1 -> 1899-12-31，25569 -> 1969-12-31
func SerialToDate(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial < 0 || serial > maxSerial {
		return time.Time{}, false
	}
	days := int(serial)
	if days > 59 {
		days--
	}
	return serialEpoch.AddDate(0, 0, days), true
}

// 日/月优先（印度银行导出习惯），其次 ISO 与英文月份
var dateLayouts = []string{
	"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"02/01/06", "2/1/06", "02-01-06",
	"2006-01-02", "2006/01/02", "2006-1-2", "2006/1/2",
	"2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339,
	"02/01/2006 15:04:05", "02-01-2006 15:04:05",
	"02-Jan-2006", "2-Jan-2006", "02/Jan/2006", "02 Jan 2006", "2 Jan 2006",
	"02-Jan-06", "02/Jan/06",
	"2 January 2006", "02 January 2006", "January 2, 2006", "Jan 2, 2006", "2-January-2006",
}

// ParseDate 解析文本日期；纯数字文本按序列号处理
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return SerialToDate(f)
	}
	// 英文月份大小写不一
	candidate := titleMonth(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// titleMonth "12-JAN-1950" -> "12-Jan-1950"
func titleMonth(s string) string {
	b := []byte(strings.ToLower(s))
	for i := range b {
		if b[i] < 'a' || b[i] > 'z' {
			continue
		}
		if i == 0 || !isLetter(b[i-1]) {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// AgeAt 周岁：生日未到减一
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
