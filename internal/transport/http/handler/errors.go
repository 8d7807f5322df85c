package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gopherai-kbqa/internal/apperr"
	"gopherai-kbqa/internal/transport/http/middleware"
	"gopherai-kbqa/internal/transport/http/response"
)

// classify maps a pipeline error to an HTTP status, a response code and a
// message that is safe to show to the caller.
func classify(err error) (int, int, string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, response.CodeBadRequest, err.Error()
	case apperr.IsServiceError(err):
		return http.StatusBadGateway, response.CodeUpstream, "upstream model service unavailable"
	case errors.Is(err, apperr.ErrConfiguration):
		return http.StatusServiceUnavailable, response.CodeUnavailable, "knowledge base not ready"
	default:
		return http.StatusInternalServerError, response.CodeInternalServer, "internal server error"
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code, message := classify(err)
	logRequestError(c, logger, err, status)
	response.Error(c, status, code, message)
}

func logRequestError(c *gin.Context, logger *slog.Logger, err error, status int) {
	attrs := []any{
		"request_id", c.GetString(middleware.ContextRequestIDKey),
		"path", c.FullPath(),
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
		return
	}
	logger.Warn("request rejected", attrs...)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
