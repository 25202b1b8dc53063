package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/crowdwatch/internal/alerting"
	"github.com/your-org/crowdwatch/internal/density"
	"github.com/your-org/crowdwatch/internal/ingest"
	"github.com/your-org/crowdwatch/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	frame   ingest.Frame
	ok      bool
	started int
	stopped int
	running bool
}

func (f *fakeSource) Start(context.Context) { f.mu.Lock(); f.started++; f.running = true; f.mu.Unlock() }
func (f *fakeSource) Stop()                 { f.mu.Lock(); f.stopped++; f.running = false; f.mu.Unlock() }
func (f *fakeSource) isRunning() bool       { f.mu.Lock(); defer f.mu.Unlock(); return f.running }
func (f *fakeSource) LatestFrame() (ingest.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.ok
}
func (f *fakeSource) set(at time.Time) {
	f.mu.Lock()
	f.frame = ingest.Frame{Data: []byte{0xFF, 0xD8}, CapturedAt: at}
	f.ok = true
	f.mu.Unlock()
}

type fakeCounter struct {
	mu    sync.Mutex
	ready bool
	count int
	err   error
}

func (f *fakeCounter) Ready() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.ready }
func (f *fakeCounter) CountPeople(context.Context, []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.err
}
func (f *fakeCounter) set(n int) { f.mu.Lock(); f.count = n; f.mu.Unlock() }

// stallingCounter blocks its first call until release is closed, ignoring
// cancellation the way a busy inference call does.
type stallingCounter struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *stallingCounter) Ready() bool { return true }
func (c *stallingCounter) CountPeople(context.Context, []byte) (int, error) {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return 1, nil
}

type failingRecorder struct{ calls atomic.Int32 }

func (r *failingRecorder) Record(context.Context, models.AlertEvent, []byte) error {
	r.calls.Add(1)
	return errors.New("bucket unavailable")
}

type fakeDispatcher struct {
	mu      sync.Mutex
	alerts  []models.AlertEvent
	err     error
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, a models.AlertEvent) (alerting.Ack, error) {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	release, err := f.release, f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return alerting.Ack{}, err
	}
	return alerting.Ack{Success: true}, nil
}

func (f *fakeDispatcher) calls() int { f.mu.Lock(); defer f.mu.Unlock(); return len(f.alerts) }

type fakeBroadcaster struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (f *fakeBroadcaster) Broadcast(msgType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msgType == "monitor_status" {
		f.snaps = append(f.snaps, payload.(Snapshot))
	}
}

type harness struct {
	m    *Monitor
	src  *fakeSource
	cnt  *fakeCounter
	disp *fakeDispatcher
	bc   *fakeBroadcaster

	clockMu sync.Mutex
	clock   time.Time
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *harness) setClock(t time.Time) {
	h.clockMu.Lock()
	h.clock = t
	h.clockMu.Unlock()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:   &fakeSource{},
		cnt:   &fakeCounter{ready: true},
		disp:  &fakeDispatcher{},
		bc:    &fakeBroadcaster{},
		clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.m = New(Options{
		CameraID:        "gate-3",
		Thresholds:      density.Thresholds{Warning: 1, Critical: 3},
		Cooldown:        10 * time.Second,
		SentDisplay:     5 * time.Second,
		SampleInterval:  time.Hour, // ticks are driven by the test
		DispatchTimeout: time.Second,
	}, Deps{Source: h.src, Counter: h.cnt, Dispatcher: h.disp, Broadcaster: h.bc})
	h.m.now = h.now
	return h
}

// tick feeds one frame with n people captured at offset from the start.
func (h *harness) tick(n int, offset time.Duration) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset)
	h.setClock(at)
	h.src.set(at)
	h.cnt.set(n)
	h.m.mu.Lock()
	session := h.m.session
	h.m.mu.Unlock()
	h.m.sample(context.Background(), session)
}

func (h *harness) status() Status {
	s, _ := h.m.board.Current(h.now())
	return s
}

func TestMonitor_EscalationSendsOneAlert(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	want := []Status{StatusIdle, StatusWarning, StatusWarning, StatusAlerting}
	for i, n := range []int{0, 1, 2, 3} {
		h.tick(n, time.Duration(i)*200*time.Millisecond)
		if n < 3 {
			assert.Equal(t, want[i], h.status(), "count=%d", n)
		}
	}
	h.m.dispatches.Wait()

	require.Equal(t, 1, h.disp.calls())
	assert.Equal(t, 3, h.disp.alerts[0].PeopleCount)
	assert.Equal(t, StatusSent, h.status())

	h.setClock(h.now().Add(5 * time.Second))
	assert.Equal(t, StatusIdle, h.status())
	assert.Equal(t, 3, h.m.Snapshot().PeopleCount)
}

func TestMonitor_RepeatedCriticalWithinCooldown(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	for i := 0; i < 5; i++ {
		h.tick(5, time.Duration(i)*400*time.Millisecond)
	}
	h.m.dispatches.Wait()

	assert.Equal(t, 1, h.disp.calls())
	assert.True(t, h.m.Snapshot().InCooldown)
}

func TestMonitor_CooldownRelease(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.tick(4, 0)
	h.tick(4, 11*time.Second)
	h.m.dispatches.Wait()

	assert.Equal(t, 2, h.disp.calls())
}

func TestMonitor_DispatchFailureKeepsCooldown(t *testing.T) {
	h := newHarness(t)
	h.disp.err = &alerting.DispatchError{StatusCode: 500, Body: "provider down"}
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.tick(3, 0)
	h.m.dispatches.Wait()
	assert.Equal(t, StatusError, h.status())

	h.tick(3, 2*time.Second)
	h.m.dispatches.Wait()
	assert.Equal(t, 1, h.disp.calls())
	assert.Equal(t, StatusError, h.status(), "status is frozen while cooling down")
}

func TestMonitor_DisableDropsInFlightResult(t *testing.T) {
	h := newHarness(t)
	h.disp.release = make(chan struct{})
	h.m.Enable(context.Background())

	h.tick(6, 0)
	assert.Equal(t, StatusAlerting, h.status())

	h.m.Disable()
	close(h.disp.release)
	h.m.dispatches.Wait()

	snap := h.m.Snapshot()
	assert.False(t, snap.Enabled)
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, 0, snap.PeopleCount)
	assert.False(t, snap.InCooldown)
	assert.Nil(t, snap.LastAlertAt)
	assert.Equal(t, 1, h.src.stopped)
}

func TestMonitor_NoFrameMeansNoWebcam(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.m.sample(context.Background(), 1)
	assert.Equal(t, StatusNoWebcam, h.status())

	h.cnt.ready = false
	h.src.set(h.now())
	h.m.sample(context.Background(), 1)
	assert.Equal(t, StatusNoWebcam, h.status())
	assert.Zero(t, h.disp.calls())
}

func TestMonitor_DetectionErrorKeepsLooping(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.cnt.err = errors.New("onnx: invalid input")
	h.tick(0, 0)
	assert.Equal(t, StatusError, h.status())

	h.cnt.err = nil
	h.tick(1, time.Second)
	assert.Equal(t, StatusWarning, h.status())
}

func TestMonitor_EnableIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	h.m.Enable(context.Background())
	assert.True(t, h.m.Enabled())
	assert.Equal(t, 1, h.src.started)

	h.m.Disable()
	h.m.Disable()
	assert.False(t, h.m.Enabled())
	assert.Equal(t, 1, h.src.stopped)
}

func TestMonitor_BroadcastsOnChange(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.tick(1, 0)
	h.tick(1, 200*time.Millisecond)
	h.tick(0, 400*time.Millisecond)

	h.bc.mu.Lock()
	defer h.bc.mu.Unlock()
	require.Len(t, h.bc.snaps, 3) // enabled, warning, idle
	assert.True(t, h.bc.snaps[0].Enabled)
	assert.Equal(t, StatusWarning, h.bc.snaps[1].Status)
	assert.Equal(t, StatusIdle, h.bc.snaps[2].Status)
}

func TestMonitor_ActivityLogOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	defer h.m.Disable()

	for i, n := range []int{2, 2, 2, 4, 4, 1} {
		h.tick(n, time.Duration(i)*time.Second)
	}
	h.m.dispatches.Wait()

	got := h.m.Activity()
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, 4, got[1].Count)
	assert.Equal(t, 2, got[2].Count)
}

func TestMonitor_ReenableAfterDisableAlertsImmediately(t *testing.T) {
	h := newHarness(t)
	h.m.Enable(context.Background())
	h.tick(5, 0)
	h.m.dispatches.Wait()
	require.Equal(t, 1, h.disp.calls())

	h.m.Disable()
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.tick(5, time.Second)
	h.m.dispatches.Wait()
	assert.Equal(t, 2, h.disp.calls(), "a new session starts with no cooldown")
	assert.Equal(t, StatusSent, h.status())
}

func TestMonitor_EnableDuringDisableWaitsForTeardown(t *testing.T) {
	src := &fakeSource{}
	src.set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cnt := &stallingCounter{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(Options{
		CameraID:        "gate-3",
		Thresholds:      density.Thresholds{Warning: 1, Critical: 3},
		Cooldown:        10 * time.Second,
		SentDisplay:     5 * time.Second,
		SampleInterval:  5 * time.Millisecond,
		DispatchTimeout: time.Second,
	}, Deps{Source: src, Counter: cnt, Dispatcher: &fakeDispatcher{}})

	m.Enable(context.Background())
	<-cnt.entered

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.Disable() }()
	require.Eventually(t, func() bool { return !m.Enabled() }, time.Second, time.Millisecond)
	go func() { defer wg.Done(); m.Enable(context.Background()) }()

	// let the second Enable reach the lock before the stalled tick returns
	time.Sleep(20 * time.Millisecond)
	close(cnt.release)
	wg.Wait()
	defer m.Disable()

	assert.True(t, m.Enabled())
	assert.True(t, src.isRunning())
	require.Eventually(t, func() bool { return m.Snapshot().Status == StatusWarning }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Snapshot().PeopleCount)
}

func TestMonitor_RecorderFailureDoesNotBlockDispatch(t *testing.T) {
	h := newHarness(t)
	rec := &failingRecorder{}
	h.m.deps.Recorder = rec
	h.m.Enable(context.Background())
	defer h.m.Disable()

	h.tick(4, 0)
	h.m.dispatches.Wait()

	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, 1, h.disp.calls())
	assert.Equal(t, StatusSent, h.status())
}
