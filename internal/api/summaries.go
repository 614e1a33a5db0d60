package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pensionhub/internal/model"
	"pensionhub/internal/report"
)

// parseDimensions 解析 dimension 查询参数（可重复），为空表示全部维度
func parseDimensions(c *gin.Context) ([]model.Dimension, bool) {
	var dims []model.Dimension
	for _, raw := range c.QueryArray("dimension") {
		dim, err := model.ParseDimension(raw)
		if err != nil {
			badRequest(c, err.Error())
			return nil, false
		}
		dims = append(dims, dim)
	}
	return dims, true
}

// GetSummaries 某个维度的汇总行及校验率
// GET /api/summaries/:dimension?key1=&sort=key|total|rate&limit=
func (h *Handler) GetSummaries(c *gin.Context) {
	dim, err := model.ParseDimension(c.Param("dimension"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	q := report.SummaryQuery{Key1: c.Query("key1"), Sort: c.Query("sort")}
	switch q.Sort {
	case "", "key", "total", "rate":
	default:
		badRequest(c, "sort must be one of key, total, rate")
		return
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		badRequest(c, err.Error())
		return
	}

	rep, err := h.reports.Summaries(c.Request.Context(), dim, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Recompute 从明细全量重建汇总
// POST /api/summaries/recompute?dimension=state&dimension=bank
func (h *Handler) Recompute(c *gin.Context) {
	dims, ok := parseDimensions(c)
	if !ok {
		return
	}
	res, err := h.aggregator.Recompute(c.Request.Context(), dims...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Verify 比对汇总与明细，不做写入
// GET /api/summaries/verify?dimension=state
func (h *Handler) Verify(c *gin.Context) {
	dims, ok := parseDimensions(c)
	if !ok {
		return
	}
	drifts, err := h.aggregator.Verify(c.Request.Context(), dims...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}
