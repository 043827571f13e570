package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps a failure class to its HTTP status.
func StatusFor(reason models.ErrorReason) int {
	switch reason {
	case models.ReasonInvalidInput:
		return http.StatusBadRequest
	case models.ReasonNoTablesFound:
		return http.StatusUnprocessableEntity
	case models.ReasonMissingDependency:
		return http.StatusServiceUnavailable
	case models.ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError 统一错误处理
func writeError(c *gin.Context, log logger.Logger, status int, err error) {
	ce := models.Normalize(err)
	if status == 0 {
		status = StatusFor(ce.Reason)
	}

	log = logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.String("reason", string(ce.Reason)),
		logger.Error(ce),
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
	} else {
		log.Warn("Request rejected", fields...)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   string(ce.Reason),
		Message: ce.Error(),
	})
}
