package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/crowdwatch/internal/relay"
	"github.com/your-org/crowdwatch/pkg/dto"
)

const (
	relayBanner       = "Stampede Detection Backend API is running!"
	missingFieldsText = "Missing required fields: message, crowdDensity, timestamp"
)

type alertSender interface {
	SendAlert(ctx context.Context, a relay.Alert) (string, error)
}

type AlertHandler struct {
	relay alertSender
}

func NewAlertHandler(r alertSender) *AlertHandler {
	return &AlertHandler{relay: r}
}

func (h *AlertHandler) Banner(c *gin.Context) {
	c.String(http.StatusOK, relayBanner)
}

// Stampede forwards a stampede alert to the operator's phone.
func (h *AlertHandler) Stampede(c *gin.Context) {
	var req dto.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AlertResponse{Success: false, Error: missingFieldsText})
		return
	}

	_, err := h.relay.SendAlert(c.Request.Context(), relay.Alert{
		Message:      req.Message,
		CrowdDensity: req.CrowdDensity,
		Timestamp:    req.Timestamp,
	})

	var verr *relay.ValidationError
	var perr *relay.ProviderError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.AlertResponse{Success: true, Message: "WhatsApp alert sent!"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, dto.AlertResponse{Success: false, Error: missingFieldsText})
	case errors.As(err, &perr):
		c.JSON(http.StatusInternalServerError, dto.AlertResponse{
			Success: false,
			Error:   "Failed to send WhatsApp alert",
			Details: perr.Details(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.AlertResponse{
			Success: false,
			Error:   "Failed to send WhatsApp alert",
			Details: err.Error(),
		})
	}
}
