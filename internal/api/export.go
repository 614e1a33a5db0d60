package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pensionhub/internal/exporter"
	"pensionhub/internal/model"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	downloadTTL     = 10 * time.Minute
)

// buildExportContentDisposition ASCII 文件名 + RFC 5987 编码的本地化文件名；
// 只导出单个维度时文件名带上维度
func buildExportContentDisposition(at time.Time, dims []model.Dimension) string {
	scope := ""
	if len(dims) == 1 {
		scope = "-" + string(dims[0])
	}
	ascii := fmt.Sprintf("pension-summary%s-%s.xlsx", scope, at.Format("20060102"))
	local := fmt.Sprintf("养老金汇总%s-%s.xlsx", scope, at.Format("2006-01-02"))
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", ascii, url.PathEscape(local))
}

type exportEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) exportOptions(c *gin.Context) (exporter.ExportOptions, bool) {
	dims, ok := parseDimensions(c)
	return exporter.ExportOptions{Dimensions: dims}, ok
}

// ExportSummaries 直接下载汇总工作簿
// GET /api/export/summaries?dimension=state
func (h *Handler) ExportSummaries(c *gin.Context) {
	opts, ok := h.exportOptions(c)
	if !ok {
		return
	}

	file, err := h.exporter.Export(c.Request.Context(), opts, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", buildExportContentDisposition(h.now(), opts.Dimensions))
	c.Header("Content-Type", xlsxContentType)
	if err := file.Write(c.Writer); err != nil {
		h.logger.WithError(err).Error("failed to write export")
	}
}

// ExportStream 导出汇总工作簿（SSE 进度 + 完成后提供一次性下载地址）
// POST /api/export/stream
func (h *Handler) ExportStream(c *gin.Context) {
	opts, ok := h.exportOptions(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(typ, msg string, data any) {
		writeEvent(c, flusher, exportEvent{Type: typ, Message: msg, Data: data, Timestamp: h.now()})
	}
	send("start", "export started", gin.H{"dimensions": opts.Dimensions})

	file, err := h.exporter.Export(c.Request.Context(), opts, func(p exporter.ProgressEvent) {
		send("progress", p.Stage, gin.H{"percent": p.Percent, "sheet": p.Sheet})
	})
	if err != nil {
		send("error", "export failed: "+err.Error(), gin.H{})
		return
	}
	defer file.Close()

	path := filepath.Join(h.exportDir, fmt.Sprintf("pensionhub_export_%s.xlsx", uuid.NewString()))
	if err := file.SaveAs(path); err != nil {
		send("error", "failed to save export: "+err.Error(), gin.H{})
		_ = os.Remove(path)
		return
	}

	token := h.downloads.shelve(path, opts.Dimensions)
	prefix := strings.TrimSuffix(c.FullPath(), "/export/stream")
	send("done", "export finished", gin.H{
		"percent":     100,
		"downloadUrl": fmt.Sprintf("%s/export/download/%s", prefix, token),
	})
}

// DownloadExport 下载导出文件（一次性）
// GET /api/export/download/:token
func (h *Handler) DownloadExport(c *gin.Context) {
	item, ok := h.downloads.claim(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download link expired"})
		return
	}
	defer os.Remove(item.path)

	if _, err := os.Stat(item.path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export file missing"})
		return
	}

	c.Header("Content-Disposition", buildExportContentDisposition(item.createdAt, item.dimensions))
	c.Header("Content-Type", xlsxContentType)
	c.File(item.path)
}
