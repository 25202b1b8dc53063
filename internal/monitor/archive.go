package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/crowdwatch/internal/models"
)

type objectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type alertPublisher interface {
	PublishAlert(ctx context.Context, alert models.AlertEvent) error
}

// Archive keeps an audit trail of fired alerts: the triggering frame in
// object storage and the event on the alerts stream. Either may be nil.
type Archive struct {
	store     objectStore
	publisher alertPublisher
}

func NewArchive(store objectStore, publisher alertPublisher) *Archive {
	return &Archive{store: store, publisher: publisher}
}

func snapshotKey(alert models.AlertEvent) string {
	return fmt.Sprintf("alerts/%s/%s.jpg", alert.OccurredAt.UTC().Format("2006-01-02"), alert.ID)
}

// Record stores the frame and publishes the alert. Failures are logged and
// returned but never affect monitoring.
func (a *Archive) Record(ctx context.Context, alert models.AlertEvent, frame []byte) error {
	if a.store != nil && len(frame) > 0 {
		key := snapshotKey(alert)
		if err := a.store.PutObject(ctx, key, frame, "image/jpeg"); err != nil {
			slog.Warn("archive alert frame", "alert_id", alert.ID, "error", err)
		} else {
			alert.SnapshotKey = key
		}
	}

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.PublishAlert(ctx, alert); err != nil {
		slog.Warn("publish alert event", "alert_id", alert.ID, "error", err)
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
