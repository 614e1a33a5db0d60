package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pensionhub/internal/model"
	"pensionhub/internal/store"
)

// regionValue 存储值为大写，"unknown" 对应无法解析的占位值
func regionValue(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if strings.EqualFold(v, model.UnknownRegion) {
		v = model.UnknownRegion
	} else {
		v = strings.ToUpper(strings.Join(strings.Fields(v), " "))
	}
	return &v
}

func rawValue(raw string) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return &v
}

// parseFilter 从查询参数构造明细过滤条件
func parseFilter(c *gin.Context) (store.PensionerFilter, bool) {
	f := store.PensionerFilter{
		State:       regionValue(c.Query("state")),
		District:    regionValue(c.Query("district")),
		Pincode:     rawValue(c.Query("pincode")),
		Bank:        regionValue(c.Query("bank")),
		PDA:         regionValue(c.Query("pda")),
		PSA:         regionValue(c.Query("psa")),
		AgeCategory: rawValue(c.Query("age_category")),
		BatchID:     rawValue(c.Query("batch_id")),
	}
	if raw := c.Query("verified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid verified "+strconv.Quote(raw))
			return f, false
		}
		f.Verified = &v
	}
	var err error
	if f.Limit, err = queryInt(c, "limit", 0); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	return f, true
}

// ListPensioners 明细分页查询
// GET /api/pensioners?state=&district=&pincode=&bank=&pda=&psa=&age_category=&verified=&batch_id=&limit=&offset=
func (h *Handler) ListPensioners(c *gin.Context) {
	f, ok := parseFilter(c)
	if !ok {
		return
	}
	page, err := h.reports.Pensioners(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetPensioner 按 PPO 号查询
// GET /api/pensioners/:ppo
func (h *Handler) GetPensioner(c *gin.Context) {
	rec, err := h.reports.Pensioner(c.Request.Context(), c.Param("ppo"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CrossTab 两个字段的交叉计数（可叠加过滤条件）
// GET /api/crosstab?row=state&col=age_category
func (h *Handler) CrossTab(c *gin.Context) {
	row, col := c.Query("row"), c.Query("col")
	for _, name := range []string{row, col} {
		if _, err := store.ParseColumn(name); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if strings.EqualFold(strings.TrimSpace(row), strings.TrimSpace(col)) {
		badRequest(c, "row and col must differ")
		return
	}
	f, ok := parseFilter(c)
	if !ok {
		return
	}

	tab, err := h.reports.CrossTab(c.Request.Context(), row, col, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tab)
}
