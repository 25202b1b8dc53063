// Package relay forwards stampede alerts and SOS notifications to the
// messaging provider.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
)

// Alert is a validated stampede alert.
type Alert struct {
	Message      string
	CrowdDensity *int
	Timestamp    string
}

// Validate reports every missing field at once.
func (a Alert) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Message) == "" {
		missing = append(missing, "message")
	}
	if a.CrowdDensity == nil {
		missing = append(missing, "crowdDensity")
	}
	if strings.TrimSpace(a.Timestamp) == "" {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// FormatAlert renders the text delivered to the operator's phone.
func FormatAlert(density int, message string) string {
	return fmt.Sprintf("🚨 STAMPEDE ALERT! 🚨\nCrowd Density: %d\nDetails: %s", density, message)
}

type Service struct {
	sender Sender
	to     string
}

func NewService(sender Sender, to string) *Service {
	return &Service{sender: sender, to: to}
}

// SendAlert validates the alert and forwards it to the configured recipient.
func (s *Service) SendAlert(ctx context.Context, a Alert) (string, error) {
	if err := a.Validate(); err != nil {
		observability.RelayRequests.WithLabelValues("invalid").Inc()
		return "", err
	}

	sid, err := s.sender.Send(ctx, s.to, FormatAlert(*a.CrowdDensity, a.Message))
	if err != nil {
		observability.RelayRequests.WithLabelValues("provider_error").Inc()
		observability.ProviderSends.WithLabelValues("alert", "error").Inc()
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Err: err}
		}
		return "", err
	}

	observability.RelayRequests.WithLabelValues("sent").Inc()
	observability.ProviderSends.WithLabelValues("alert", "sent").Inc()
	slog.Info("stampede alert sent", "sid", sid, "crowd_density", *a.CrowdDensity)
	return sid, nil
}

// DeliverNotification sends one queued SOS fan-out notification. It matches
// queue.NotificationHandler.
func (s *Service) DeliverNotification(ctx context.Context, n models.Notification) error {
	if n.Recipient.Address == "" {
		observability.ProviderSends.WithLabelValues("sos", "invalid").Inc()
		return fmt.Errorf("notification %s has no recipient address", n.ID)
	}

	sid, err := s.sender.Send(ctx, n.Recipient.Address, n.Body)
	if err != nil {
		observability.ProviderSends.WithLabelValues("sos", "error").Inc()
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}

	observability.ProviderSends.WithLabelValues("sos", "sent").Inc()
	slog.Debug("sos notification delivered", "report_id", n.ReportID, "recipient", n.Recipient.ID, "sid", sid)
	return nil
}
