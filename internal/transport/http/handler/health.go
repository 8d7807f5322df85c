package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings one optional dependency.
type HealthCheck func(ctx context.Context) error

type HealthInfo struct {
	App       string
	Env       string
	Version   string
	StartedAt time.Time
}

type HealthHandler struct {
	info   HealthInfo
	index  IndexSource
	checks map[string]HealthCheck
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(info HealthInfo, index IndexSource, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{info: info, index: index, checks: checks}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dependencies := make(gin.H, len(h.checks))
	allOK := true
	for name, check := range h.checks {
		status := dependencyStatus{OK: true}
		if err := check(ctx); err != nil {
			status = dependencyStatus{OK: false, Message: err.Error()}
			allOK = false
		}
		dependencies[name] = status
	}

	documents := 0
	ix := h.index.Current()
	if ix != nil {
		documents = ix.Len()
	}
	loaded := ix != nil

	status := "healthy"
	statusCode := http.StatusOK
	if !loaded || !allOK {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":         status,
		"app":            h.info.App,
		"env":            h.info.Env,
		"version":        h.info.Version,
		"uptime_sec":     int(time.Since(h.info.StartedAt).Seconds()),
		"index_loaded":   loaded,
		"document_count": documents,
		"dependencies":   dependencies,
	})
}
