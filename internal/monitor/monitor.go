// Package monitor runs the sampling loop: frame → person count → density
// tier → cooldown gate → relay dispatch, and exposes the operator status.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/crowdwatch/internal/alerting"
	"github.com/your-org/crowdwatch/internal/density"
	"github.com/your-org/crowdwatch/internal/ingest"
	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/observability"
)

// ErrDetectionUnavailable means no frame or no ready detector for a tick.
var ErrDetectionUnavailable = errors.New("detection unavailable: no camera frame or detector not ready")

type FrameSource interface {
	Start(ctx context.Context)
	Stop()
	LatestFrame() (ingest.Frame, bool)
}

type PeopleCounter interface {
	Ready() bool
	CountPeople(ctx context.Context, frame []byte) (int, error)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert models.AlertEvent) (alerting.Ack, error)
}

type AlertRecorder interface {
	Record(ctx context.Context, alert models.AlertEvent, frame []byte) error
}

// Broadcaster pushes status updates to connected operators.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

type Options struct {
	CameraID        string
	Thresholds      density.Thresholds
	Cooldown        time.Duration
	SentDisplay     time.Duration
	SampleInterval  time.Duration
	DispatchTimeout time.Duration
}

type Deps struct {
	Source      FrameSource
	Counter     PeopleCounter
	Dispatcher  AlertDispatcher
	Recorder    AlertRecorder // optional
	Broadcaster Broadcaster   // optional
}

// Snapshot is the monitor state served to the console.
type Snapshot struct {
	CameraID          string     `json:"camera_id"`
	Enabled           bool       `json:"enabled"`
	Status            Status     `json:"status"`
	Detail            string     `json:"detail,omitempty"`
	PeopleCount       int        `json:"people_count"`
	Tier              string     `json:"tier"`
	WarningThreshold  int        `json:"warning_threshold"`
	CriticalThreshold int        `json:"critical_threshold"`
	InCooldown        bool       `json:"in_cooldown"`
	CooldownRemaining float64    `json:"cooldown_remaining_seconds"`
	LastAlertAt       *time.Time `json:"last_alert_at,omitempty"`
}

type Monitor struct {
	opts       Options
	deps       Deps
	gate       *alerting.Gate
	board      *StatusBoard
	activity   *ActivityLog
	now        func() time.Time
	dispatches sync.WaitGroup

	// lifecycle serialises Enable and Disable so an Enable issued during
	// teardown starts only after the previous session is fully stopped.
	lifecycle sync.Mutex

	mu          sync.Mutex
	session     uint64
	cancel      context.CancelFunc
	done        chan struct{}
	count       int
	tier        density.Tier
	lastPublish Snapshot
}

func New(opts Options, deps Deps) *Monitor {
	return &Monitor{
		opts:     opts,
		deps:     deps,
		gate:     alerting.NewGate(opts.CameraID, opts.Cooldown),
		board:    NewStatusBoard(opts.SentDisplay),
		activity: NewActivityLog(),
		now:      time.Now,
	}
}

// Enable starts capture and the sampling loop. Enabling a running monitor
// is a no-op. The loop outlives ctx's cancellation; stop it with Disable.
func (m *Monitor) Enable(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	m.session++
	session := m.session
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.board.Reset()
	m.mu.Unlock()

	m.deps.Source.Start(loopCtx)
	slog.Info("monitoring enabled", "camera", m.opts.CameraID, "session", session)
	m.publish()

	go m.loop(loopCtx, session, done)
}

// Disable stops the loop, waits for it to exit and resets the gate, count
// and status. Results of dispatches started before Disable are discarded.
func (m *Monitor) Disable() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.session++
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.deps.Source.Stop()

	m.gate.Reset()
	m.mu.Lock()
	m.count = 0
	m.tier = density.Quiet
	m.board.Reset()
	m.mu.Unlock()

	observability.PeopleDetected.WithLabelValues(m.opts.CameraID).Set(0)
	observability.DensityTier.WithLabelValues(m.opts.CameraID).Set(0)
	slog.Info("monitoring disabled", "camera", m.opts.CameraID)
	m.publish()
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) Activity() []models.ActivityRecord {
	return m.activity.Entries()
}

func (m *Monitor) Snapshot() Snapshot {
	now := m.now()
	status, detail := m.board.Current(now)

	m.mu.Lock()
	snap := Snapshot{
		CameraID:          m.opts.CameraID,
		Enabled:           m.cancel != nil,
		Status:            status,
		Detail:            detail,
		PeopleCount:       m.count,
		Tier:              m.tier.String(),
		WarningThreshold:  m.opts.Thresholds.Warning,
		CriticalThreshold: m.opts.Thresholds.Critical,
	}
	m.mu.Unlock()

	snap.InCooldown = m.gate.InCooldown(now)
	snap.CooldownRemaining = m.gate.Remaining(now).Seconds()
	if at, ok := m.gate.LastAlertAt(); ok {
		snap.LastAlertAt = &at
	}
	return snap
}

func (m *Monitor) loop(ctx context.Context, session uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.sample(ctx, session)
		}
	}
}

// sample evaluates one tick. Only the loop goroutine calls it, so samples
// are classified and gated in capture order.
func (m *Monitor) sample(ctx context.Context, session uint64) {
	camera := m.opts.CameraID

	frame, ok := m.deps.Source.LatestFrame()
	if !ok || !m.deps.Counter.Ready() {
		observability.FramesUnavailable.WithLabelValues(camera).Inc()
		m.board.NoWebcam()
		m.publish()
		return
	}

	count, err := m.deps.Counter.CountPeople(ctx, frame.Data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("person detection failed", "camera", camera, "error", err)
		m.board.Failed(err)
		m.publish()
		return
	}
	observability.FramesSampled.WithLabelValues(camera).Inc()

	s := models.DetectionSample{Count: count, CapturedAt: frame.CapturedAt}
	tier := density.Classify(count, m.opts.Thresholds)

	m.mu.Lock()
	m.count = count
	m.tier = tier
	m.mu.Unlock()
	observability.PeopleDetected.WithLabelValues(camera).Set(float64(count))
	observability.DensityTier.WithLabelValues(camera).Set(float64(tier.Severity()))

	m.activity.Record(s)

	alert, fired := m.gate.Observe(s, tier)
	switch {
	case fired:
		observability.AlertsEmitted.WithLabelValues(camera).Inc()
		slog.Warn("critical crowd density", "camera", camera, "people", count, "alert_id", alert.ID)
		m.board.Alerting()
		m.dispatches.Add(1)
		go m.dispatch(session, alert, frame.Data)
	case tier == density.Critical:
		observability.AlertsSuppressed.WithLabelValues(camera).Inc()
		m.board.ObserveTier(tier, true, m.now())
	default:
		m.board.ObserveTier(tier, m.gate.InCooldown(s.CapturedAt), m.now())
	}
	m.publish()
}

func (m *Monitor) dispatch(session uint64, alert models.AlertEvent, frame []byte) {
	defer m.dispatches.Done()

	if m.deps.Recorder != nil {
		m.dispatches.Add(1)
		go func() {
			defer m.dispatches.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.opts.DispatchTimeout)
			defer cancel()
			if err := m.deps.Recorder.Record(ctx, alert, frame); err != nil {
				slog.Warn("record alert failed", "alert_id", alert.ID, "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DispatchTimeout)
	defer cancel()

	_, err := m.deps.Dispatcher.Dispatch(ctx, alert)

	m.mu.Lock()
	if session != m.session {
		m.mu.Unlock()
		slog.Debug("dropping dispatch result from previous session", "alert_id", alert.ID)
		return
	}
	if err != nil {
		m.board.Failed(err)
	} else {
		m.board.DispatchSucceeded(m.now())
	}
	m.mu.Unlock()

	if err != nil {
		slog.Error("alert dispatch failed", "alert_id", alert.ID, "error", err)
	}
	m.publish()
}

// publish broadcasts the snapshot when status, count or enablement changed.
func (m *Monitor) publish() {
	if m.deps.Broadcaster == nil {
		return
	}
	snap := m.Snapshot()

	m.mu.Lock()
	prev := m.lastPublish
	changed := prev.Status != snap.Status || prev.PeopleCount != snap.PeopleCount || prev.Enabled != snap.Enabled
	if changed {
		m.lastPublish = snap
	}
	m.mu.Unlock()

	if changed {
		m.deps.Broadcaster.Broadcast("monitor_status", snap)
	}
}
