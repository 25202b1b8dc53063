package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/monitor"
	"github.com/your-org/crowdwatch/pkg/dto"
)

type monitorControl interface {
	Enable(ctx context.Context)
	Disable()
	Snapshot() monitor.Snapshot
	Activity() []models.ActivityRecord
}

type MonitorHandler struct {
	monitor monitorControl
}

func NewMonitorHandler(m monitorControl) *MonitorHandler {
	return &MonitorHandler{monitor: m}
}

func (h *MonitorHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

func (h *MonitorHandler) Enable(c *gin.Context) {
	h.monitor.Enable(c.Request.Context())
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

func (h *MonitorHandler) Disable(c *gin.Context) {
	h.monitor.Disable()
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

func (h *MonitorHandler) Activity(c *gin.Context) {
	records := h.monitor.Activity()
	resp := dto.ActivityResponse{Entries: make([]dto.ActivityEntry, 0, len(records))}
	for _, r := range records {
		resp.Entries = append(resp.Entries, dto.ActivityEntry{
			Timestamp: r.Timestamp.Format(time.RFC3339),
			Count:     r.Count,
		})
	}
	c.JSON(http.StatusOK, resp)
}
