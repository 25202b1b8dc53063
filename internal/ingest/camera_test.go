package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/models"
)

func TestCamera_KeepsNewestFrame(t *testing.T) {
	cam := NewCamera(config.CameraConfig{Source: "/dev/video0", Format: "v4l2", FPS: 10, Width: 640})
	emitted := make(chan struct{})
	cam.extract = func(ctx context.Context, input, format string, fps, width int, cb FrameCallback) error {
		assert.Equal(t, "/dev/video0", input)
		assert.Equal(t, "v4l2", format)
		_ = cb([]byte{1})
		_ = cb([]byte{2})
		close(emitted)
		<-ctx.Done()
		return ctx.Err()
	}

	cam.Start(context.Background())
	<-emitted

	frame, ok := cam.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, frame.Data)
	assert.True(t, cam.Ready())
	assert.Equal(t, models.CameraStatusRunning, cam.State().Status)

	cam.Stop()
	_, ok = cam.LatestFrame()
	assert.False(t, ok)
	assert.Equal(t, models.CameraStatusStopped, cam.State().Status)
}

func TestCamera_StaleFrameIsNotServed(t *testing.T) {
	cam := NewCamera(config.CameraConfig{Source: "/dev/video0"})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cam.now = func() time.Time { return now }
	cam.latest = &Frame{Data: []byte{1}, CapturedAt: now.Add(-3 * time.Second)}

	_, ok := cam.LatestFrame()
	assert.False(t, ok)
}

func TestCamera_RecordsFailureAndRetries(t *testing.T) {
	cam := NewCamera(config.CameraConfig{Source: "/dev/video9"})
	var calls atomic.Int32
	failed := make(chan struct{})
	cam.extract = func(ctx context.Context, _, _ string, _, _ int, _ FrameCallback) error {
		if calls.Add(1) == 1 {
			defer close(failed)
			return errors.New("no such device")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	cam.Start(context.Background())
	<-failed
	require.Eventually(t, func() bool {
		return cam.State().Status == models.CameraStatusError
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "no such device", cam.State().ErrorMessage)
	assert.False(t, cam.Ready())

	cam.Stop()
}

func TestIsYouTube(t *testing.T) {
	assert.True(t, isYouTube("https://www.youtube.com/watch?v=abc"))
	assert.True(t, isYouTube("https://youtu.be/abc"))
	assert.False(t, isYouTube("rtsp://cam.local/stream"))
}
