package model

import "time"

// Outcome 单条记录入库结果
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
)

// SheetResult 单个工作表的处理结果
type SheetResult struct {
	SheetName      string           `json:"sheetName"`
	Status         string           `json:"status"` // imported/skipped/error
	DetectedFormat string           `json:"detectedFormat,omitempty"`
	Confidence     float64          `json:"confidence"`
	Ambiguous      []CanonicalField `json:"ambiguous,omitempty"`
	TotalRows      int              `json:"totalRows"`
	InsertedRows   int              `json:"insertedRows"`
	Duplicates     int              `json:"duplicates"`
	Rejected       int              `json:"rejected"`
	Errors         int              `json:"errors"`
	GeoUnresolved  int              `json:"geoUnresolved"`
	Messages       []string         `json:"messages,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// BatchResult 一次文件导入的结构化结果，部分失败时同样返回
type BatchResult struct {
	Success        bool          `json:"success"`
	BatchID        string        `json:"batchId"`
	Filename       string        `json:"filename"`
	DetectedFormat string        `json:"detectedFormat"`
	Confidence     float64       `json:"confidence"`
	TotalRows      int           `json:"totalRows"`
	InsertedRows   int           `json:"insertedRows"`
	Duplicates     int           `json:"duplicates"`
	Rejected       int           `json:"rejected"`
	Errors         int           `json:"errors"` // 被拒绝的行 + 行级存储失败
	GeoUnresolved  int           `json:"geoUnresolved"`
	Sheets         []SheetResult `json:"sheets"`
	FatalError     string        `json:"fatalError,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Add 汇总工作表结果
func (r *BatchResult) Add(s SheetResult) {
	r.Sheets = append(r.Sheets, s)
	r.TotalRows += s.TotalRows
	r.InsertedRows += s.InsertedRows
	r.Duplicates += s.Duplicates
	r.Rejected += s.Rejected
	r.Errors += s.Errors
	r.GeoUnresolved += s.GeoUnresolved
}

// ImportLog 导入日志
type ImportLog struct {
	BatchID        string     `json:"batchId"`
	Filename       string     `json:"filename"`
	FileSize       int64      `json:"fileSize"`
	FileHash       string     `json:"fileHash"`
	DetectedFormat string     `json:"detectedFormat"`
	Confidence     float64    `json:"confidence"`
	Status         string     `json:"status"`
	TotalRows      int        `json:"totalRows"`
	InsertedRows   int        `json:"insertedRows"`
	Duplicates     int        `json:"duplicates"`
	Rejected       int        `json:"rejected"`
	Errors         int        `json:"errors"`
	GeoUnresolved  int        `json:"geoUnresolved"`
	ErrorMessage   string     `json:"errorMessage"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}
