package ingest

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/models"
)

// Frame is one JPEG image captured from the camera.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

type extractFunc func(ctx context.Context, input, format string, fps, width int, cb FrameCallback) error

// Camera keeps FFmpeg running against the configured source while started and
// holds only the newest frame.
type Camera struct {
	cfg     config.CameraConfig
	maxAge  time.Duration
	extract extractFunc
	resolve func(ctx context.Context, url string) (string, error)
	now     func() time.Time

	mu     sync.RWMutex
	latest *Frame
	state  models.CameraState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCamera(cfg config.CameraConfig) *Camera {
	return &Camera{
		cfg:    cfg,
		maxAge: 2 * time.Second,
		extract: func(ctx context.Context, input, format string, fps, width int, cb FrameCallback) error {
			return (&FFmpegExtractor{}).StartExtraction(ctx, input, format, fps, width, cb)
		},
		resolve: ResolveYouTubeURL,
		now:     time.Now,
		state:   models.CameraState{Source: cfg.Source, Status: models.CameraStatusStopped},
	}
}

// Start launches capture in the background. Calling Start on a running
// camera does nothing.
func (c *Camera) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state.Status = models.CameraStatusStarting
	c.state.ErrorMessage = ""
	done := c.done
	c.mu.Unlock()

	slog.Info("starting camera capture", "source", c.cfg.Source, "fps", c.cfg.FPS)
	go c.run(runCtx, done)
}

// Stop ends capture and waits for FFmpeg to exit.
func (c *Camera) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.mu.Lock()
	c.latest = nil
	c.state.Status = models.CameraStatusStopped
	c.mu.Unlock()
	slog.Info("camera capture stopped", "source", c.cfg.Source)
}

// LatestFrame returns the newest frame if it is recent enough to represent
// the live scene.
func (c *Camera) LatestFrame() (Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil || c.now().Sub(c.latest.CapturedAt) > c.maxAge {
		return Frame{}, false
	}
	return *c.latest, true
}

// Ready reports whether capture is producing frames.
func (c *Camera) Ready() bool {
	_, ok := c.LatestFrame()
	return ok
}

func (c *Camera) State() models.CameraState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.state
	if c.latest != nil {
		at := c.latest.CapturedAt
		st.LastFrameAt = &at
	}
	return st
}

func (c *Camera) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	const maxDelay = 30 * time.Second
	delay := time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying camera capture", "source", c.cfg.Source, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		input := c.cfg.Source
		if isYouTube(input) {
			// Resolved URLs expire, so resolve on every attempt.
			resolved, err := c.resolve(ctx, input)
			if err != nil {
				c.setError(err)
				continue
			}
			input = resolved
		}

		err := c.extract(ctx, input, c.cfg.Format, c.cfg.FPS, c.cfg.Width, func(data []byte) error {
			c.mu.Lock()
			c.latest = &Frame{Data: data, CapturedAt: c.now()}
			if c.state.Status != models.CameraStatusRunning {
				c.state.Status = models.CameraStatusRunning
				c.state.ErrorMessage = ""
				delay = time.Second
			}
			c.mu.Unlock()
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// Input ended; devices and live streams are expected to keep going.
			c.setError(errInputEnded)
			continue
		}
		slog.Error("camera capture failed", "source", c.cfg.Source, "attempt", attempt, "error", err)
		c.setError(err)
	}
}

func (c *Camera) setError(err error) {
	c.mu.Lock()
	c.state.Status = models.CameraStatusError
	c.state.ErrorMessage = err.Error()
	c.mu.Unlock()
}

func isYouTube(source string) bool {
	return strings.Contains(source, "youtube.com/") || strings.Contains(source, "youtu.be/")
}
