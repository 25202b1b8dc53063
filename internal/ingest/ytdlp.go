package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ResolveYouTubeURL uses yt-dlp to turn a YouTube live link into a direct
// media URL FFmpeg can open.
func ResolveYouTubeURL(ctx context.Context, youtubeURL string) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--get-url",
		"--format", "best[height<=720]",
		"--no-playlist",
		youtubeURL,
	)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	// First line is the video URL; an audio URL may follow.
	url, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("yt-dlp returned empty URL")
	}
	return url, nil
}
