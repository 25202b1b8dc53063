package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/crowdwatch/internal/models"
)

const (
	AlertsStreamName  = "ALERTS"
	AlertsSubjectBase = "alerts"
	NotifyStreamName  = "NOTIFY"
	NotifySubjectBase = "notify.sos"
)

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        AlertsStreamName,
			Subjects:    []string{AlertsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      30 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Description: "Crowd density alerts audit trail",
		},
		{
			Name:        NotifyStreamName,
			Subjects:    []string{NotifySubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  10 * time.Minute,
			Description: "SOS fan-out notifications awaiting delivery",
		},
	}
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := streamConfigs()

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

func AlertSubject(cameraID string) string {
	return fmt.Sprintf("%s.%s", AlertsSubjectBase, cameraID)
}

func NotificationSubject(reportID string) string {
	return fmt.Sprintf("%s.%s", NotifySubjectBase, reportID)
}

// NotificationMsgID is the broker dedupe key: one message per report and recipient.
func NotificationMsgID(n models.Notification) string {
	return n.ReportID.String() + ":" + n.Recipient.ID
}

// PublishAlert records a fired alert on the ALERTS stream.
func (p *Producer) PublishAlert(ctx context.Context, alert models.AlertEvent) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if _, err := p.js.Publish(ctx, AlertSubject(alert.CameraID), payload,
		jetstream.WithMsgID(alert.ID.String())); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// PublishNotification queues one fan-out message. Republishing the same
// report/recipient pair within the stream's duplicate window is dropped by
// the broker.
func (p *Producer) PublishNotification(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := p.js.Publish(ctx, NotificationSubject(n.ReportID.String()), payload,
		jetstream.WithMsgID(NotificationMsgID(n))); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// PendingNotifications returns the number of undelivered messages in NOTIFY.
func (p *Producer) PendingNotifications(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, NotifyStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
