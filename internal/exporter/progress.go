package exporter

// 导出阶段
const (
	StageOverview = "overview"
	StageDone     = "done"
)

// ProgressEvent 导出进度；维度阶段的 Stage 为维度名，Sheet 为对应工作表
type ProgressEvent struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
	Sheet   string `json:"sheet,omitempty"`
}

// progressReporter 单调递增的进度回调，重复或回退的百分比不再上报
type progressReporter struct {
	fn   func(ProgressEvent)
	last int
}

func newProgressReporter(fn func(ProgressEvent)) *progressReporter {
	return &progressReporter{fn: fn, last: -1}
}

func (r *progressReporter) report(percent int, stage, sheet string) {
	if r.fn == nil {
		return
	}
	percent = min(max(percent, 0), 100)
	if percent <= r.last && stage != StageDone {
		return
	}
	r.last = percent
	r.fn(ProgressEvent{Percent: percent, Stage: stage, Sheet: sheet})
}
