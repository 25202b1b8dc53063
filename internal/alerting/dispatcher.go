package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
)

const stampedePath = "/api/alert/stampede"

// AlertRequest is the relay's request body.
type AlertRequest struct {
	Message      string `json:"message"`
	CrowdDensity int    `json:"crowdDensity"`
	Timestamp    string `json:"timestamp"`
}

// Ack is the relay's reply.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// DispatchError is returned when the relay could not be reached or
// answered with a non-2xx status. StatusCode is zero for transport failures.
type DispatchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch alert: %v", e.Err)
	}
	return fmt.Sprintf("dispatch alert: relay returned %d: %s", e.StatusCode, e.Body)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher posts alerts to the relay. It never retries; the cooldown gate
// has already accounted for the alert.
type Dispatcher struct {
	client *resty.Client
}

func NewDispatcher(relayURL string, timeout time.Duration) *Dispatcher {
	client := resty.New().
		SetBaseURL(relayURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &Dispatcher{client: client}
}

func (d *Dispatcher) Dispatch(ctx context.Context, alert models.AlertEvent) (Ack, error) {
	body := AlertRequest{
		Message:      alert.Message,
		CrowdDensity: alert.PeopleCount,
		Timestamp:    alert.OccurredAt.UTC().Format(time.RFC3339),
	}

	var ack Ack
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&ack).
		SetError(&ack).
		Post(stampedePath)
	if err != nil {
		observability.DispatchOutcomes.WithLabelValues("transport_error").Inc()
		return Ack{}, &DispatchError{Err: err}
	}
	if resp.IsError() {
		observability.DispatchOutcomes.WithLabelValues("rejected").Inc()
		return ack, &DispatchError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	observability.DispatchOutcomes.WithLabelValues("sent").Inc()
	slog.Info("alert dispatched", "alert_id", alert.ID, "people", alert.PeopleCount)
	return ack, nil
}
