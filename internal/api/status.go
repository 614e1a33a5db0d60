package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pensionhub/internal/model"
)

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.reports.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListProfiles 已知来源格式（按优先级）及规范字段
// GET /api/profiles
func (h *Handler) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": h.detector.Profiles(),
		"fields":   model.CanonicalFields,
	})
}
