package caster

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/capture"
	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/distributor"
	"github.com/junsooki/screencast/internal/metrics"
)

// Loop captures, encodes and publishes frames on a fixed cadence. The
// flags are checked once per iteration, so shutdown latency is bounded by
// one interval plus one capture.
type Loop struct {
	source     capture.Source
	region     *capture.Region
	codec      codec.Codec
	dist       *distributor.Distributor
	flags      *control.Flags
	interval   time.Duration
	errorDelay time.Duration
	logger     zerolog.Logger

	lastGood []byte
	lastW    int
	lastH    int
}

func newLoop(source capture.Source, region *capture.Region, c codec.Codec, dist *distributor.Distributor,
	flags *control.Flags, interval time.Duration, logger zerolog.Logger) *Loop {
	return &Loop{
		source:     source,
		region:     region,
		codec:      c,
		dist:       dist,
		flags:      flags,
		interval:   interval,
		errorDelay: 100 * time.Millisecond,
		logger:     logger,
	}
}

// Run blocks until stop or terminate is set or ctx is done. The goroutine
// is pinned to its OS thread for the capture device.
func (l *Loop) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.logger.Info().Dur("interval", l.interval).Str("codec", l.codec.Name()).Msg("capture loop started")
	defer l.logger.Info().Msg("capture loop stopped")

	for !l.flags.Done() && ctx.Err() == nil {
		delay := l.interval
		if !l.flags.Paused.Load() {
			if !l.step() {
				delay = l.errorDelay
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// step runs one capture. It returns false after a device or encode error.
func (l *Loop) step() bool {
	f, err := l.source.Frame()
	switch {
	case errors.Is(err, capture.ErrNotReady):
		l.heartbeat()
		return true
	case err != nil:
		metrics.CaptureErrors.Inc()
		l.logger.Warn().Err(err).Msg("capture failed")
		return false
	}
	metrics.FramesCaptured.Inc()

	f, err = capture.Crop(f, l.region)
	if err != nil {
		metrics.CaptureErrors.Inc()
		l.logger.Warn().Err(err).Msg("crop failed")
		return false
	}
	kind := metrics.KindFrame
	if l.flags.Blanked.Load() {
		f = f.Blank()
		kind = metrics.KindBlank
	}
	payload, err := l.codec.Encode(f)
	if err != nil {
		metrics.CaptureErrors.Inc()
		l.logger.Warn().Err(err).Msg("encode failed")
		return false
	}
	l.lastGood = payload
	l.lastW, l.lastH = f.Width, f.Height
	l.publish(payload, kind)
	return true
}

// heartbeat re-publishes so idle subscribers can tell a still screen from
// a dead connection. While blanked a fresh blank frame is sent instead.
func (l *Loop) heartbeat() {
	if l.flags.Blanked.Load() {
		if l.lastW == 0 {
			return
		}
		blank := &capture.Frame{
			Width:     l.lastW,
			Height:    l.lastH,
			Pix:       make([]byte, l.lastW*l.lastH*4),
			Order:     capture.OrderRGBA,
			Timestamp: time.Now(),
		}
		payload, err := l.codec.Encode(blank)
		if err != nil {
			metrics.CaptureErrors.Inc()
			l.logger.Warn().Err(err).Msg("encode blank heartbeat failed")
			return
		}
		l.publish(payload, metrics.KindBlank)
		return
	}
	if l.lastGood != nil {
		l.publish(l.lastGood, metrics.KindHeartbeat)
	}
}

func (l *Loop) publish(payload []byte, kind string) {
	n := l.dist.Publish(payload)
	metrics.FramesPublished.WithLabelValues(kind).Inc()
	l.logger.Trace().Str("kind", kind).Int("bytes", len(payload)).Int("subscribers", n).Msg("published")
}
