// Package extraction cuts the detected segments out of the source video,
// producing one local clip per segment with bounded concurrency. A failed
// segment is recorded and skipped; the batch carries on.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ClipCutter is the transcoding collaborator: it extracts one time range of
// inputPath into outputPath.
type ClipCutter interface {
	Cut(ctx context.Context, inputPath string, startSeconds, durationSeconds float64, outputPath string) error
}

// FFmpegCutter implements ClipCutter by invoking the ffmpeg binary with a
// seek offset and duration. Stream copy keeps extraction fast and avoids a
// generation loss; clips are only consumed by the vision model.
type FFmpegCutter struct {
	ffmpegPath  string
	ffprobePath string
}

var _ ClipCutter = (*FFmpegCutter)(nil)

// NewFFmpegCutter locates ffmpeg and ffprobe in PATH.
func NewFFmpegCutter() (*FFmpegCutter, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpegCutter{ffmpegPath: ffmpeg, ffprobePath: ffprobe}, nil
}

// CheckFFmpegAvailable reports whether ffmpeg and ffprobe are installed.
// Called at startup so a missing binary fails fast instead of on job one.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: clip extraction will be unavailable. Install FFmpeg with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: media probing will be unavailable")
	}
	return nil
}

func (c *FFmpegCutter) Cut(ctx context.Context, inputPath string, startSeconds, durationSeconds float64, outputPath string) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(startSeconds),
		"-i", inputPath,
		"-t", formatSeconds(durationSeconds),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outputPath,
	}

	log.Debug().
		Str("input", inputPath).
		Float64("start", startSeconds).
		Float64("duration", durationSeconds).
		Str("output", outputPath).
		Msg("Running ffmpeg clip extraction")

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// The tool's diagnostic text must survive into the error.
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

// ffprobeFormat is the subset of ffprobe's JSON output the probe needs.
type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration returns the media duration in seconds using ffprobe.
func (c *FFmpegCutter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var probe ffprobeFormat
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}

// formatSeconds renders a seek/duration value the way ffmpeg expects.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// lastLines returns the final n non-empty lines of s, joined by "; ".
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	keep := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(keep) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			keep = append([]string{line}, keep...)
		}
	}
	return strings.Join(keep, "; ")
}
