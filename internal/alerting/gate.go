// Package alerting debounces critical density samples and forwards the
// resulting alerts to the relay.
package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/crowdwatch/internal/density"
	"github.com/your-org/crowdwatch/internal/models"
)

// Gate lets at most one alert through per cooldown window.
// The window is measured from lastAlertAt, the only cooldown state.
type Gate struct {
	cameraID string
	window   time.Duration

	mu          sync.Mutex
	lastAlertAt time.Time // zero while idle
}

func NewGate(cameraID string, window time.Duration) *Gate {
	return &Gate{cameraID: cameraID, window: window}
}

// Observe evaluates one classified sample. It returns an alert and true only
// when the gate is idle and the tier is critical; the gate then enters
// cooldown starting at the sample's capture time.
func (g *Gate) Observe(sample models.DetectionSample, tier density.Tier) (models.AlertEvent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tier != density.Critical || g.inCooldownLocked(sample.CapturedAt) {
		return models.AlertEvent{}, false
	}

	g.lastAlertAt = sample.CapturedAt
	return models.AlertEvent{
		ID:          uuid.New(),
		CameraID:    g.cameraID,
		Severity:    density.Critical.String(),
		PeopleCount: sample.Count,
		Message:     fmt.Sprintf("Critical stampede risk! %d people detected.", sample.Count),
		OccurredAt:  sample.CapturedAt,
	}, true
}

func (g *Gate) InCooldown(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inCooldownLocked(now)
}

// Remaining returns how long the current cooldown still lasts, or zero.
func (g *Gate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inCooldownLocked(now) {
		return 0
	}
	return g.window - now.Sub(g.lastAlertAt)
}

// LastAlertAt reports the start of the most recent cooldown.
func (g *Gate) LastAlertAt() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAlertAt, !g.lastAlertAt.IsZero()
}

// Reset returns the gate to idle regardless of elapsed time.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.lastAlertAt = time.Time{}
	g.mu.Unlock()
}

func (g *Gate) inCooldownLocked(now time.Time) bool {
	if g.lastAlertAt.IsZero() {
		return false
	}
	return now.Sub(g.lastAlertAt) < g.window
}
