package recording

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// VideoFile is the name of the finalized video inside a recording directory.
const VideoFile = "recording.mp4"

// Job describes the frames of a stopped recording.
type Job struct {
	Dir     string
	Pattern string // printf-style frame name, e.g. frame_%06d.jpg
	Glob    string // matches every frame file
	FPS     float64
	Frames  int
}

// Finalizer turns the frames of a Job into one video and returns its path.
type Finalizer interface {
	Finalize(ctx context.Context, job Job) (string, error)
}

// FFmpegFinalizer encodes frames with the ffmpeg binary and removes them on
// success.
type FFmpegFinalizer struct {
	Binary  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func (f *FFmpegFinalizer) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

// Args returns the ffmpeg command line for job.
func (f *FFmpegFinalizer) Args(job Job) []string {
	return []string{
		"-y",
		"-framerate", strconv.FormatFloat(job.FPS, 'f', 3, 64),
		"-i", filepath.Join(job.Dir, job.Pattern),
		// libx264 with yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		filepath.Join(job.Dir, VideoFile),
	}
}

func (f *FFmpegFinalizer) Finalize(ctx context.Context, job Job) (string, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := f.Args(job)
	f.Logger.Debug().Str("binary", f.binary()).Strs("args", args).Msg("running encoder")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("recording: ffmpeg failed: %w: %s", err, lastLine(stderr.Bytes()))
	}

	if err := removeFrames(job); err != nil {
		f.Logger.Warn().Err(err).Str("dir", job.Dir).Msg("failed to remove frame files")
	}
	return filepath.Join(job.Dir, VideoFile), nil
}

func removeFrames(job Job) error {
	matches, err := filepath.Glob(filepath.Join(job.Dir, job.Glob))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
