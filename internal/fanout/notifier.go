// Package fanout notifies users near an approved SOS report.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
)

// Directory finds recipients within a radius of a location.
type Directory interface {
	Nearby(ctx context.Context, loc models.Location, radiusMeters float64) ([]models.Recipient, error)
}

type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

type Notifier struct {
	dir    Directory
	pub    Publisher
	radius float64
	now    func() time.Time
}

func NewNotifier(dir Directory, pub Publisher, radiusMeters float64) *Notifier {
	return &Notifier{dir: dir, pub: pub, radius: radiusMeters, now: time.Now}
}

// NotifyNearby queues one notification per recipient near the report and
// returns how many were queued. Publishing continues past individual
// failures; the returned error joins them.
func (n *Notifier) NotifyNearby(ctx context.Context, report models.SOSReport) (int, error) {
	recipients, err := n.dir.Nearby(ctx, report.Location, n.radius)
	if err != nil {
		return 0, fmt.Errorf("lookup nearby recipients: %w", err)
	}

	body := MessageBody(report)
	queued := 0
	var errs []error
	for _, r := range recipients {
		msg := models.Notification{
			ID:        uuid.New(),
			ReportID:  report.ID,
			Recipient: r,
			Body:      body,
			CreatedAt: n.now().UTC(),
		}
		if err := n.pub.PublishNotification(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.ID, err))
			continue
		}
		queued++
	}
	observability.NotificationsQueued.Add(float64(queued))

	slog.Info("sos fan-out queued",
		"report_id", report.ID,
		"recipients", len(recipients),
		"queued", queued,
		"radius_m", n.radius,
	)
	return queued, errors.Join(errs...)
}

// MessageBody is the text sent to nearby users.
func MessageBody(r models.SOSReport) string {
	body := "⚠️ SOS ALERT NEAR YOU ⚠️\n"
	if r.Message != "" {
		body += "Details: " + r.Message + "\n"
	}
	return body + fmt.Sprintf("Location: %.5f, %.5f\nPlease avoid the area and follow official guidance.",
		r.Location.Latitude, r.Location.Longitude)
}
