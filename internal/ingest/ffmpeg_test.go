package ingest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJPEGFrames_SplitsConcatenatedImages(t *testing.T) {
	stream := []byte{
		0x00, 0x01, // junk before the first frame
		0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9,
		0xFF, 0xD8, 0x30, 0xFF, 0x00, 0x40, 0xFF, 0xD9,
	}

	var frames [][]byte
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(b []byte) error {
		frames = append(frames, b)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x30, 0xFF, 0x00, 0x40, 0xFF, 0xD9}, frames[1])
}

func TestReadJPEGFrames_TruncatedTailAfterFrames(t *testing.T) {
	stream := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9, 0xFF, 0xD8, 0x02}

	count := 0
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func([]byte) error {
		count++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReadJPEGFrames_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := readJPEGFrames(ctx, bytes.NewReader(nil), func([]byte) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("/dev/video0", "v4l2", 10, 640)
	assert.Subset(t, args, []string{"-f", "v4l2", "-framerate", "-i", "/dev/video0", "fps=10,scale=640:-1", "pipe:1"})

	args = ffmpegArgs("rtsp://cam.local/stream", "", 5, 320)
	assert.Contains(t, args, "-rtsp_transport")
	assert.NotContains(t, args, "v4l2")

	args = ffmpegArgs("https://example.com/live.m3u8", "", 5, 320)
	assert.Contains(t, args, "-reconnect")
}
