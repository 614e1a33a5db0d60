package api

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pensionhub/internal/importer"
	"pensionhub/internal/model"
)

const defaultImportLogLimit = 50

// importOptions 从 multipart 表单读取导入选项；调用方负责关闭返回的文件
func (h *Handler) importOptions(c *gin.Context) (importer.ImportOptions, multipart.File, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing upload field \"file\"")
		return importer.ImportOptions{}, nil, false
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "cannot open uploaded file")
		return importer.ImportOptions{}, nil, false
	}

	opts := importer.ImportOptions{
		Reader:   file,
		Filename: header.Filename,
		Profile:  c.PostForm("profile"),
		Sheet:    c.PostForm("sheet"),
	}
	if raw := c.PostForm("mapping"); raw != "" {
		var manual model.ManualMapping
		if err := json.Unmarshal([]byte(raw), &manual); err != nil {
			_ = file.Close()
			badRequest(c, "invalid mapping: "+err.Error())
			return importer.ImportOptions{}, nil, false
		}
		opts.Mapping = &manual
	}
	return opts, file, true
}

// Detect 识别上传文件的格式与列映射，不写入数据
// POST /api/detect
func (h *Handler) Detect(c *gin.Context) {
	opts, file, ok := h.importOptions(c)
	if !ok {
		return
	}
	defer file.Close()

	plans, err := h.coordinator.Preview(opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": opts.Filename, "sheets": plans})
}

// Import 导入上传的文件；stream=true 时以 SSE 推送进度
// POST /api/import
func (h *Handler) Import(c *gin.Context) {
	opts, file, ok := h.importOptions(c)
	if !ok {
		return
	}
	defer file.Close()

	if stream, _ := strconv.ParseBool(c.DefaultPostForm("stream", c.Query("stream"))); stream {
		h.importStream(c, opts)
		return
	}

	res, err := h.coordinator.Import(c.Request.Context(), opts)
	if err != nil {
		code := statusFor(err)
		body := gin.H{"error": err.Error()}
		if res != nil {
			body["result"] = res
		}
		if code >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("file", opts.Filename).Error("import failed")
		}
		c.JSON(code, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) importStream(c *gin.Context, opts importer.ImportOptions) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for event := range h.coordinator.ImportAsync(c.Request.Context(), opts) {
		writeEvent(c, flusher, event)
	}
}

// writeEvent SSE 格式: data: {json}\n\n
func writeEvent(c *gin.Context, flusher http.Flusher, event any) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", b)
	flusher.Flush()
}

// ListImports 最近的导入批次
// GET /api/imports?limit=50
func (h *Handler) ListImports(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultImportLogLimit)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	logs, err := h.store.ListImportLogs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

// GetImport 单个导入批次
// GET /api/imports/:batchId
func (h *Handler) GetImport(c *gin.Context) {
	log, err := h.store.GetImportLog(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}
