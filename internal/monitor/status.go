package monitor

import (
	"sync"
	"time"

	"github.com/your-org/crowdwatch/internal/density"
)

// Status is the operator-facing monitoring state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWarning  Status = "warning"
	StatusAlerting Status = "alerting"
	StatusSent     Status = "sent"
	StatusError    Status = "error"
	StatusNoWebcam Status = "no-webcam"
)

// StatusBoard holds the current Status. The sent status carries an expiry
// and reads as idle once it passes.
type StatusBoard struct {
	sentDisplay time.Duration

	mu        sync.Mutex
	status    Status
	detail    string
	sentUntil time.Time
}

func NewStatusBoard(sentDisplay time.Duration) *StatusBoard {
	return &StatusBoard{sentDisplay: sentDisplay, status: StatusIdle}
}

// Current returns the status as of now, along with any error detail.
func (b *StatusBoard) Current(now time.Time) (Status, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now)
	return b.status, b.detail
}

// ObserveTier applies a classified sample. While the gate is cooling down
// the status is left as is.
func (b *StatusBoard) ObserveTier(tier density.Tier, inCooldown bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(now)
	if inCooldown {
		return
	}
	switch tier {
	case density.Critical:
		b.setLocked(StatusAlerting, "")
	case density.Warning:
		b.setLocked(StatusWarning, "")
	default:
		b.setLocked(StatusIdle, "")
	}
}

func (b *StatusBoard) Alerting() {
	b.mu.Lock()
	b.setLocked(StatusAlerting, "")
	b.mu.Unlock()
}

func (b *StatusBoard) DispatchSucceeded(now time.Time) {
	b.mu.Lock()
	b.setLocked(StatusSent, "")
	b.sentUntil = now.Add(b.sentDisplay)
	b.mu.Unlock()
}

func (b *StatusBoard) Failed(err error) {
	b.mu.Lock()
	b.setLocked(StatusError, err.Error())
	b.mu.Unlock()
}

func (b *StatusBoard) NoWebcam() {
	b.mu.Lock()
	b.setLocked(StatusNoWebcam, ErrDetectionUnavailable.Error())
	b.mu.Unlock()
}

func (b *StatusBoard) Reset() {
	b.mu.Lock()
	b.setLocked(StatusIdle, "")
	b.mu.Unlock()
}

func (b *StatusBoard) setLocked(s Status, detail string) {
	b.status = s
	b.detail = detail
	if s != StatusSent {
		b.sentUntil = time.Time{}
	}
}

func (b *StatusBoard) expireLocked(now time.Time) {
	if b.status == StatusSent && !now.Before(b.sentUntil) {
		b.setLocked(StatusIdle, "")
	}
}
