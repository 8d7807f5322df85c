package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"gopherai-kbqa/internal/transport/http/middleware"
	"gopherai-kbqa/internal/transport/http/response"
)

type IndexReloader interface {
	ReloadIndex(ctx context.Context) (int, error)
}

type AdminHandler struct {
	reloader IndexReloader
	logger   *slog.Logger
}

func NewAdminHandler(reloader IndexReloader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{reloader: reloader, logger: logger}
}

// ReloadIndex loads the persisted index again and swaps it in. The old
// index keeps serving when the load fails.
func (h *AdminHandler) ReloadIndex(c *gin.Context) {
	documents, err := h.reloader.ReloadIndex(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("index reloaded",
		"by", c.GetString(middleware.ContextSubjectKey),
		"documents", documents)
	response.OK(c, gin.H{"total_documents": documents})
}
