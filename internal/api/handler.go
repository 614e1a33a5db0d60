// Package api HTTP 接口（gin）
package api

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/exporter"
	"pensionhub/internal/importer"
	"pensionhub/internal/parser"
	"pensionhub/internal/report"
	"pensionhub/internal/store"
)

// Handler API 处理器
type Handler struct {
	store       *store.Store
	coordinator *importer.Coordinator
	detector    *parser.Detector
	aggregator  *aggregator.Aggregator
	reports     *report.Service
	exporter    *exporter.Exporter
	logger      logrus.FieldLogger
	maxUpload   int64
	exportDir   string
	downloads   *artifactShelf
	now         func() time.Time
}

// Deps 处理器依赖
type Deps struct {
	Store       *store.Store
	Coordinator *importer.Coordinator
	Detector    *parser.Detector
	Aggregator  *aggregator.Aggregator
	Logger      logrus.FieldLogger
	MaxUploadMB int
	ExportDir   string // 流式导出的临时文件目录，空表示系统临时目录
}

// NewHandler 创建 API 处理器
func NewHandler(d Deps) *Handler {
	reports := report.NewService(d.Store)
	maxUpload := int64(d.MaxUploadMB) << 20
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	exportDir := d.ExportDir
	if exportDir == "" {
		exportDir = os.TempDir()
	}
	return &Handler{
		store:       d.Store,
		coordinator: d.Coordinator,
		detector:    d.Detector,
		aggregator:  d.Aggregator,
		reports:     reports,
		exporter:    exporter.NewExporter(reports),
		logger:      d.Logger,
		maxUpload:   maxUpload,
		exportDir:   exportDir,
		downloads:   newArtifactShelf(downloadTTL, func(a exportArtifact) { _ = os.Remove(a.path) }),
		now:         time.Now,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	router.GET("/profiles", h.ListProfiles)

	// 数据导入
	router.POST("/detect", h.Detect)
	router.POST("/import", h.Import)
	router.GET("/imports", h.ListImports)
	router.GET("/imports/:batchId", h.GetImport)

	// 汇总
	router.GET("/summaries/:dimension", h.GetSummaries)
	router.POST("/summaries/recompute", h.Recompute)
	router.GET("/summaries/verify", h.Verify)

	// 明细查询
	router.GET("/pensioners", h.ListPensioners)
	router.GET("/pensioners/:ppo", h.GetPensioner)
	router.GET("/crosstab", h.CrossTab)

	// 数据导出
	router.GET("/export/summaries", h.ExportSummaries)
	router.POST("/export/stream", h.ExportStream)
	router.GET("/export/download/:token", h.DownloadExport)
}
