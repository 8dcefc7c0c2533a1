// Package receiver connects to a caster, decodes the frame stream into a
// DisplaySlot and feeds an optional recorder.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/metrics"
	"github.com/junsooki/screencast/internal/recording"
	"github.com/junsooki/screencast/internal/wire"
)

const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultStallTimeout   = 2 * time.Second
	DefaultReadSlice      = 250 * time.Millisecond
	DefaultRetryDelay     = 100 * time.Millisecond
	DefaultMaxRetries     = 50
	DefaultPayloadTimeout = 10 * time.Second
)

var (
	ErrConnect      = errors.New("receiver: connect failed")
	ErrDisconnected = errors.New("receiver: disconnected")
)

type Options struct {
	Address string
	Codec   codec.Codec

	ConnectTimeout time.Duration
	// StallTimeout is how long the stream may stay silent before the
	// session is marked stalled.
	StallTimeout time.Duration
	// ReadSlice bounds each blocking read; stop is checked between slices.
	ReadSlice      time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
	PayloadTimeout time.Duration

	Logger zerolog.Logger
	Bus    *events.Bus
}

func (o *Options) applyDefaults() {
	if o.Codec == nil {
		o.Codec = codec.NewJPEG(codec.DefaultQuality)
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.ReadSlice <= 0 {
		o.ReadSlice = DefaultReadSlice
	}
	if o.ReadSlice > o.StallTimeout {
		o.ReadSlice = o.StallTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.PayloadTimeout <= 0 {
		o.PayloadTimeout = DefaultPayloadTimeout
	}
}

type ingest struct {
	opts      Options
	flags     *control.Flags
	slot      *DisplaySlot
	rec       *recording.Recorder
	connected *atomic.Bool
	logger    zerolog.Logger
	state     State
}

// Start connects to opts.Address and runs the ingest session until stop or
// terminate is set, the caster sends the end-of-stream sentinel, or the
// connection fails. connected is set once the connection is established.
// flags.Paused is driven by the session to show stalls. rec may be nil.
// A graceful end returns nil.
func Start(ctx context.Context, opts Options, flags *control.Flags, slot *DisplaySlot,
	rec *recording.Recorder, connected *atomic.Bool) error {
	opts.applyDefaults()
	if connected == nil {
		connected = new(atomic.Bool)
	}
	in := &ingest{
		opts:      opts,
		flags:     flags,
		slot:      slot,
		rec:       rec,
		connected: connected,
		logger:    opts.Logger.With().Str("addr", opts.Address).Logger(),
		state:     Connecting,
	}
	return in.run(ctx)
}

func (in *ingest) run(ctx context.Context) (err error) {
	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
		in.connected.Store(false)
		in.stopRecording("session ended")
		in.slot.Clear()
		in.flags.Paused.Store(false)
		in.setState(Terminated, err)
	}()

	dialer := net.Dialer{Timeout: in.opts.ConnectTimeout}
	conn, err = dialer.DialContext(ctx, "tcp", in.opts.Address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, in.opts.Address, err)
	}
	in.connected.Store(true)
	in.logger.Info().Msg("connected to caster")
	in.setState(Streaming, nil)

	r := wire.NewReader(conn)
	var silent time.Duration
	retries := 0
	for {
		if in.flags.Done() || ctx.Err() != nil {
			in.logger.Info().Msg("stop requested")
			return nil
		}

		n, err := r.ReadLength(time.Now().Add(in.opts.ReadSlice))
		switch {
		case err == nil:
		case errors.Is(err, wire.ErrEndOfStream):
			in.logger.Info().Msg("caster ended the stream")
			return nil
		case errors.Is(err, wire.ErrFrameTooLarge):
			return fmt.Errorf("receiver: corrupted stream: %w", err)
		case wire.IsTimeout(err):
			silent += in.opts.ReadSlice
			if silent >= in.opts.StallTimeout {
				in.stall(time.Now())
			}
			continue
		case isDisconnect(err):
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		default:
			retries++
			if retries > in.opts.MaxRetries {
				return fmt.Errorf("%w: read failed %d times: %v", ErrDisconnected, retries, err)
			}
			in.logger.Warn().Err(err).Int("retry", retries).Msg("read error, retrying")
			if !sleep(ctx, in.opts.RetryDelay) {
				return nil
			}
			continue
		}

		payload, err := r.ReadPayload(n, time.Now().Add(in.opts.PayloadTimeout))
		if err != nil {
			return fmt.Errorf("%w: reading %d byte payload: %v", ErrDisconnected, n, err)
		}
		metrics.BytesReceived.Add(float64(len(payload)))

		img, err := in.opts.Codec.Decode(payload)
		if err != nil {
			metrics.DecodeErrors.Inc()
			return fmt.Errorf("receiver: malformed payload: %w", err)
		}
		metrics.FramesReceived.Inc()

		silent = 0
		retries = 0
		in.resume()
		in.slot.Publish(img)
		in.record(img)
	}
}

// stall marks the session stalled. The pause is backdated by the stall
// timeout, the silence that preceded detection.
func (in *ingest) stall(now time.Time) {
	if in.state == Stalled {
		// opens a pause for a recording armed mid-stall
		if in.rec != nil {
			in.rec.BeginPause(now)
		}
		return
	}
	if in.rec != nil {
		in.rec.BeginPause(now.Add(-in.opts.StallTimeout))
	}
	in.flags.Paused.Store(true)
	metrics.Stalls.Inc()
	in.logger.Warn().Dur("timeout", in.opts.StallTimeout).Msg("stream stalled")
	in.setState(Stalled, nil)
}

func (in *ingest) resume() {
	if in.state != Stalled {
		return
	}
	if in.rec != nil {
		in.rec.EndPause()
	}
	in.flags.Paused.Store(false)
	in.logger.Info().Msg("stream resumed")
	in.setState(Streaming, nil)
}

func (in *ingest) record(img *image.RGBA) {
	if in.rec == nil || !in.rec.IsRecording() {
		return
	}
	err := in.rec.SaveFrame(img)
	switch {
	case err == nil:
	case errors.Is(err, recording.ErrFrameTooSmall):
		in.logger.Debug().Err(err).Msg("frame not recorded")
	default:
		in.logger.Error().Err(err).Msg("recording aborted")
		in.stopRecording("save failed")
	}
}

func (in *ingest) stopRecording(reason string) {
	if in.rec == nil {
		return
	}
	sum, err := in.rec.Stop()
	switch {
	case err != nil:
		in.logger.Warn().Err(err).Str("reason", reason).Msg("recording discarded")
	case sum != nil:
		in.logger.Info().Str("dir", sum.Dir).Int("frames", sum.Frames).Str("reason", reason).Msg("recording stopped")
	}
}

func (in *ingest) setState(to State, err error) {
	from := in.state
	in.state = to
	in.opts.Bus.Publish(events.ReceiverStateChanged{
		Address: in.opts.Address,
		From:    from.String(),
		To:      to.String(),
		Err:     err,
		At:      time.Now(),
	})
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}
