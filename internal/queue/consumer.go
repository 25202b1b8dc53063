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

// NotificationHandler delivers one notification. A returned error
// terminates the message; it is not redelivered.
type NotificationHandler func(ctx context.Context, n models.Notification) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeNotifications starts delivering messages from the NOTIFY stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeNotifications(ctx context.Context, consumerName string, handler NotificationHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	stream, err := c.js.Stream(ctx, NotifyStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", NotifyStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: NotifySubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch notifications error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handleNotification(ctx, msg, handler, workerID)
			}
		}(i)
	}

	slog.Info("notification consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func handleNotification(ctx context.Context, msg jetstream.Msg, handler NotificationHandler, workerID int) {
	var n models.Notification
	if err := json.Unmarshal(msg.Data(), &n); err != nil {
		slog.Error("unmarshal notification", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}

	if err := handler(ctx, n); err != nil {
		slog.Error("deliver notification failed",
			"worker", workerID,
			"report_id", n.ReportID,
			"recipient", n.Recipient.ID,
			"error", err,
		)
		_ = msg.Term()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
