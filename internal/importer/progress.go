package importer

import "time"

// 进度事件类型
const (
	EventStart      = "start"
	EventSheetStart = "sheet_start"
	EventRows       = "rows"
	EventSheetDone  = "sheet_done"
	EventWarning    = "warning"
	EventDone       = "done"
	EventError      = "error"
)

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string    `json:"type"`    // start/sheet_start/rows/sheet_done/warning/done/error
	Message   string    `json:"message"` // 事件消息
	Data      any       `json:"data"`    // 附加数据
	Timestamp time.Time `json:"timestamp"`
}

// sendProgress 发送进度事件
func sendProgress(ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	default:
		// 通道已满，丢弃事件
	}
}
