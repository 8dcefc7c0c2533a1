// Package recording persists received frames to disk and finalizes them
// into a single video with an external encoder.
package recording

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/capture"
	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/metrics"
)

const (
	// MinFrameSize is the smallest width and height accepted by SaveFrame.
	MinFrameSize = 16

	// FallbackFPS is used when no positive streaming time was observed.
	FallbackFPS = 30.0

	MetadataFile = "metadata.toml"
	framePrefix  = "frame_"
)

var (
	ErrNoFrames          = errors.New("recording: no frames captured")
	ErrDimensionMismatch = errors.New("recording: frame dimensions changed")
	ErrFrameTooSmall     = errors.New("recording: frame below minimum size")
)

// Metadata is written next to the frames when a recording stops.
type Metadata struct {
	ID            string    `toml:"id"`
	Frames        int       `toml:"frames"`
	FPS           float64   `toml:"fps"`
	Width         int       `toml:"width"`
	Height        int       `toml:"height"`
	StartedAt     time.Time `toml:"started_at"`
	LastFrameAt   time.Time `toml:"last_frame_at"`
	PausedSeconds float64   `toml:"paused_seconds"`
}

// Summary describes a stopped recording. Done yields the finalize result
// exactly once and is then closed.
type Summary struct {
	Metadata
	Dir  string
	Done <-chan error
}

type Options struct {
	Dir       string
	Codec     codec.Codec
	Finalizer Finalizer
	Logger    zerolog.Logger
	Bus       *events.Bus
}

// Recorder is the recording state machine. The zero session means off.
type Recorder struct {
	dir       string
	codec     codec.Codec
	finalizer Finalizer
	logger    zerolog.Logger
	bus       *events.Bus
	now       func() time.Time

	finalizing sync.WaitGroup

	mu         sync.RWMutex
	active     bool
	id         string
	outDir     string
	frames     int
	width      int
	height     int
	started    time.Time
	lastFrame  time.Time
	paused     time.Duration
	pauseStart time.Time
}

func New(opts Options) *Recorder {
	if opts.Dir == "" {
		opts.Dir = "recordings"
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewJPEG(codec.DefaultQuality)
	}
	if opts.Finalizer == nil {
		opts.Finalizer = &FFmpegFinalizer{Logger: opts.Logger}
	}
	return &Recorder{
		dir:       opts.Dir,
		codec:     opts.Codec,
		finalizer: opts.Finalizer,
		logger:    opts.Logger,
		bus:       opts.Bus,
		now:       time.Now,
	}
}

// IsRecording reports whether a session is armed.
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Frames returns the number of frames saved in the current session.
func (r *Recorder) Frames() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames
}

// Start arms a new session in a fresh directory and returns its path. It is
// a no-op returning the current directory when already recording.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return r.outDir, nil
	}

	now := r.now()
	id := uuid.NewString()
	outDir := filepath.Join(r.dir, fmt.Sprintf("%s-%s", now.Format("20060102-150405"), id[:8]))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("recording: create %s: %w", outDir, err)
	}

	r.active = true
	r.id = id
	r.outDir = outDir
	r.frames = 0
	r.width, r.height = 0, 0
	r.started = now
	r.lastFrame = now
	r.paused = 0
	r.pauseStart = time.Time{}

	r.logger.Info().Str("id", id).Str("dir", outDir).Msg("recording started")
	r.bus.Publish(events.RecordingStarted{ID: id, Dir: outDir, At: now})
	return outDir, nil
}

// SaveFrame persists img under the next sequential name. The first frame
// locks the session dimensions; a later frame of another size returns
// ErrDimensionMismatch and is not counted.
func (r *Recorder) SaveFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < MinFrameSize || h < MinFrameSize {
		return fmt.Errorf("%w: %dx%d", ErrFrameTooSmall, w, h)
	}
	if r.frames > 0 && (w != r.width || h != r.height) {
		return fmt.Errorf("%w: got %dx%d, recording is %dx%d", ErrDimensionMismatch, w, h, r.width, r.height)
	}

	data, err := r.codec.Encode(frameFromRGBA(img))
	if err != nil {
		return fmt.Errorf("recording: encode frame: %w", err)
	}
	name := filepath.Join(r.outDir, frameName(r.frames+1, r.codec.Ext()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("recording: write frame: %w", err)
	}

	if r.frames == 0 {
		r.width, r.height = w, h
	}
	r.frames++
	r.lastFrame = r.now()
	metrics.RecordedFrames.Inc()
	return nil
}

// BeginPause marks the start of a gap in the stream, clamped to the
// session start. Later calls are ignored until EndPause.
func (r *Recorder) BeginPause(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || !r.pauseStart.IsZero() {
		return
	}
	if at.Before(r.started) {
		at = r.started
	}
	r.pauseStart = at
}

// EndPause adds the open gap, if any, to the paused total.
func (r *Recorder) EndPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endPauseLocked(r.now())
}

func (r *Recorder) endPauseLocked(now time.Time) {
	if r.pauseStart.IsZero() {
		return
	}
	if d := now.Sub(r.pauseStart); d > 0 {
		r.paused += d
	}
	r.pauseStart = time.Time{}
}

// PausedFor returns the accumulated paused duration of the current session.
func (r *Recorder) PausedFor() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// Stop disarms the recorder, writes metadata and starts finalizing in the
// background. It returns nil, nil when not recording. The in-memory state
// is reset before returning whatever the outcome.
func (r *Recorder) Stop() (*Summary, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, nil
	}
	now := r.now()
	r.endPauseLocked(now)

	meta := Metadata{
		ID:            r.id,
		Frames:        r.frames,
		FPS:           frameRate(r.frames, now.Sub(r.started), r.paused),
		Width:         r.width,
		Height:        r.height,
		StartedAt:     r.started,
		LastFrameAt:   r.lastFrame,
		PausedSeconds: r.paused.Seconds(),
	}
	outDir := r.outDir
	ext := r.codec.Ext()
	r.resetLocked()
	r.mu.Unlock()

	if meta.Frames == 0 {
		metrics.Recordings.WithLabelValues("empty").Inc()
		_ = os.Remove(outDir)
		return nil, ErrNoFrames
	}

	if err := writeMetadata(outDir, meta); err != nil {
		metrics.Recordings.WithLabelValues("failed").Inc()
		return nil, err
	}

	done := make(chan error, 1)
	summary := &Summary{Metadata: meta, Dir: outDir, Done: done}
	job := Job{
		Dir:     outDir,
		Pattern: framePrefix + "%06d" + ext,
		Glob:    framePrefix + "*" + ext,
		FPS:     meta.FPS,
		Frames:  meta.Frames,
	}

	r.logger.Info().Str("id", meta.ID).Int("frames", meta.Frames).Float64("fps", meta.FPS).
		Float64("paused_seconds", meta.PausedSeconds).Msg("recording stopped, finalizing")

	r.finalizing.Add(1)
	go func() {
		defer r.finalizing.Done()
		defer close(done)
		video, err := r.finalizer.Finalize(context.Background(), job)
		ev := events.RecordingFinalized{
			ID: meta.ID, Dir: outDir, Video: video, Frames: meta.Frames, FPS: meta.FPS, Err: err,
		}
		if err != nil {
			metrics.Recordings.WithLabelValues("failed").Inc()
			r.logger.Error().Err(err).Str("id", meta.ID).Msg("recording finalize failed")
		} else {
			metrics.Recordings.WithLabelValues("ok").Inc()
			r.logger.Info().Str("id", meta.ID).Str("video", video).Msg("recording finalized")
		}
		r.bus.Publish(ev)
		done <- err
	}()
	return summary, nil
}

// Wait blocks until every finalize started by Stop has finished.
func (r *Recorder) Wait() {
	r.finalizing.Wait()
}

func (r *Recorder) resetLocked() {
	r.active = false
	r.id = ""
	r.outDir = ""
	r.frames = 0
	r.width, r.height = 0, 0
	r.started = time.Time{}
	r.lastFrame = time.Time{}
	r.paused = 0
	r.pauseStart = time.Time{}
}

// frameRate returns frames per second of streaming time, that is elapsed
// wall time minus paused time.
func frameRate(frames int, elapsed, paused time.Duration) float64 {
	effective := (elapsed - paused).Seconds()
	if frames == 0 || effective <= 0 {
		return FallbackFPS
	}
	return float64(frames) / effective
}

func frameName(seq int, ext string) string {
	return fmt.Sprintf("%s%06d%s", framePrefix, seq, ext)
}

func frameFromRGBA(img *image.RGBA) *capture.Frame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pix := img.Pix
	if img.Stride != w*4 || img.Rect.Min != (image.Point{}) {
		pix = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
			copy(pix[y*w*4:(y+1)*w*4], img.Pix[off:off+w*4])
		}
	}
	return &capture.Frame{Width: w, Height: h, Pix: pix, Order: capture.OrderRGBA}
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("recording: encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("recording: write metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the metadata record of a recording directory.
func LoadMetadata(dir string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return meta, err
	}
	if err := toml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("recording: parse metadata: %w", err)
	}
	return meta, nil
}
