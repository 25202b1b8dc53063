package sos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
	"github.com/your-org/crowdwatch/internal/storage"
)

// Feed delivers the id of every changed report. ready is called once the
// subscription is live. ListenReports blocks until ctx ends or the feed breaks.
type Feed interface {
	ListenReports(ctx context.Context, ready func(), onChange func(id uuid.UUID)) error
}

type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

var errFeedClosed = errors.New("report feed closed")

// Update is the payload broadcast for an incremental change.
type Update struct {
	Change Change           `json:"change"`
	Report models.SOSReport `json:"report"`
}

// Watcher keeps a PendingView in sync with the store: a full snapshot on
// subscribe, incremental changes after, and a fresh snapshot after every
// reconnect.
type Watcher struct {
	store    Store
	feed     Feed
	view     *PendingView
	bc       Broadcaster
	minDelay time.Duration
	maxDelay time.Duration
}

func NewWatcher(store Store, feed Feed, view *PendingView, bc Broadcaster, retryDelay time.Duration) *Watcher {
	return &Watcher{
		store:    store,
		feed:     feed,
		view:     view,
		bc:       bc,
		minDelay: retryDelay,
		maxDelay: 30 * time.Second,
	}
}

// Run subscribes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	delay := w.minDelay
	for {
		established, err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			delay = w.minDelay
		}
		slog.Warn("sos subscription lost, resubscribing", "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

func (w *Watcher) subscribe(ctx context.Context) (bool, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{})
	changes := make(chan uuid.UUID, 256)
	feedErr := make(chan error, 1)

	go func() {
		feedErr <- w.feed.ListenReports(subCtx,
			func() { close(ready) },
			func(id uuid.UUID) {
				select {
				case changes <- id:
				case <-subCtx.Done():
				}
			})
	}()

	select {
	case <-ready:
	case err := <-feedErr:
		if err == nil {
			err = errFeedClosed
		}
		return false, err
	case <-ctx.Done():
		return false, ctx.Err()
	}

	snapshot, err := w.store.ListReports(ctx, models.ReportPending, 0)
	if err != nil {
		return false, fmt.Errorf("load pending snapshot: %w", err)
	}
	w.view.Replace(snapshot)
	observability.PendingReports.Set(float64(w.view.Len()))
	w.broadcast("sos_snapshot", w.view.Pending())
	slog.Info("sos subscription established", "pending", len(snapshot))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-feedErr:
			if err == nil {
				err = errFeedClosed
			}
			return true, err
		case id := <-changes:
			w.apply(ctx, id)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, id uuid.UUID) {
	r, err := w.store.GetReport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		if w.view.Remove(id) {
			w.broadcast("sos_update", Update{Change: ChangeRemoved, Report: models.SOSReport{ID: id}})
		}
		return
	}
	if err != nil {
		slog.Warn("load changed sos report", "report_id", id, "error", err)
		return
	}

	change := w.view.Apply(*r)
	observability.PendingReports.Set(float64(w.view.Len()))
	if change != ChangeNone {
		w.broadcast("sos_update", Update{Change: change, Report: *r})
	}
}

func (w *Watcher) broadcast(msgType string, payload any) {
	if w.bc != nil {
		w.bc.Broadcast(msgType, payload)
	}
}
