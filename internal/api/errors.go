package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pensionhub/internal/importer"
	"pensionhub/internal/parser"
	"pensionhub/internal/store"
)

// statusFor 错误对应的 HTTP 状态码
func statusFor(err error) int {
	var (
		formatErr  *parser.FormatError
		mappingErr *parser.MappingError
		storageErr *importer.StorageFailure
	)
	switch {
	case errors.As(err, &formatErr), errors.As(err, &mappingErr), errors.Is(err, parser.ErrUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &storageErr), store.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
