package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/helpdesk/backend/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const codeInvalidRequest = "server.request.invalid_body"

type errorPayload struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func statusForCategory(category apperr.Category) int {
	switch category {
	case apperr.CategoryAuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.CategoryPermissionDenied:
		return http.StatusForbidden
	case apperr.CategoryNotFound:
		return http.StatusNotFound
	case apperr.CategoryValidationFailed:
		return http.StatusBadRequest
	case apperr.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as the JSON error envelope. Errors without a category are internal.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("unclassified request failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorPayload{
			Error:   string(apperr.CategoryInternal),
			Code:    "server.request.internal",
			Message: "internal error",
		})
		return
	}

	status := statusForCategory(appErr.Category())
	payload := errorPayload{
		Error:   string(appErr.Category()),
		Code:    appErr.Code(),
		Message: appErr.Message(),
		Field:   appErr.Field(),
	}
	if status == http.StatusInternalServerError {
		// Causes stay in the log; the client only sees the category and code.
		payload.Message = "internal error"
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, payload)
}

func (h *httpHandler) respondInvalidBody(c *gin.Context, err error) {
	h.logger.Debug("request body rejected", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{
		Error:   string(apperr.CategoryValidationFailed),
		Code:    codeInvalidRequest,
		Message: "request body is invalid",
	})
}
