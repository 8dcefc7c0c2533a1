// Package caster captures a display, encodes each frame and broadcasts the
// stream to TCP and WebRTC subscribers.
package caster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/capture"
	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/distributor"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/logging"
	"github.com/junsooki/screencast/internal/peer"
)

const (
	DefaultListen       = "127.0.0.1:12345"
	DefaultInterval     = 40 * time.Millisecond
	DefaultDrainTimeout = 2 * time.Second

	// PatternDisplay selects the synthetic test pattern instead of a display.
	PatternDisplay = -1
	patternWidth   = 640
	patternHeight  = 360
)

type Options struct {
	Listen       string
	DisplayIndex int
	Region       *capture.Region
	// Source overrides DisplayIndex when set. Start does not close it.
	Source   capture.Source
	Codec    codec.Codec
	Interval time.Duration
	Buffer   int

	// ControlListen serves /control (websocket) and /webrtc; empty disables.
	ControlListen string
	// ControlFile is watched for paused/blanked/terminate; empty disables.
	ControlFile string

	DrainTimeout time.Duration
	// OnListen is called with the bound address before frames flow.
	OnListen func(addr net.Addr)

	Logger zerolog.Logger
	Bus    *events.Bus
}

func (o *Options) applyDefaults() {
	if o.Listen == "" {
		o.Listen = DefaultListen
	}
	if o.Codec == nil {
		o.Codec = codec.NewJPEG(codec.DefaultQuality)
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Buffer <= 0 {
		o.Buffer = distributor.DefaultCapacity
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
}

// Start runs a caster session until stop or terminate is set or ctx is
// done. Subscribers get the end-of-stream sentinel before it returns. An
// invalid region or an unavailable display fails before anything is
// bound. flags are reset when the session ends.
func Start(ctx context.Context, opts Options, flags *control.Flags) error {
	opts.applyDefaults()
	defer flags.Reset()
	logger := opts.Logger

	source := opts.Source
	if source == nil {
		var err error
		source, err = openSource(opts.DisplayIndex, opts.Interval)
		if err != nil {
			return fmt.Errorf("caster: open display %d: %w", opts.DisplayIndex, err)
		}
		defer source.Close()
	}
	if opts.Region != nil {
		w, h := source.Bounds()
		if err := opts.Region.Validate(w, h); err != nil {
			return fmt.Errorf("caster: %w", err)
		}
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", opts.Listen)
	if err != nil {
		return fmt.Errorf("caster: listen %s: %w", opts.Listen, err)
	}
	ln := l.(*net.TCPListener)
	defer ln.Close()
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	dist := distributor.New(opts.Buffer)
	srv := newServer(ln, dist, flags, logger, opts.Bus)

	stopControl, err := startControl(opts, flags, dist, logger)
	if err != nil {
		return err
	}
	defer stopControl()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loop := newLoop(source, opts.Region, opts.Codec, dist, flags, opts.Interval, logger)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(loopCtx)
	}()

	serveErr := srv.Serve(ctx)
	cancelLoop()
	<-loopDone

	dist.Close()
	srv.Wait(opts.DrainTimeout)
	logger.Info().Msg("caster session ended")
	if serveErr != nil {
		return fmt.Errorf("caster: accept: %w", serveErr)
	}
	return nil
}

func openSource(displayIndex int, interval time.Duration) (capture.Source, error) {
	if displayIndex == PatternDisplay {
		return capture.NewPatternSource(patternWidth, patternHeight, interval), nil
	}
	return capture.Open(displayIndex, interval)
}

// startControl brings up the optional control surfaces and returns a
// function that shuts them down.
func startControl(opts Options, flags *control.Flags, dist *distributor.Distributor,
	logger zerolog.Logger) (func(), error) {
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if opts.ControlFile != "" {
		w := control.NewFileWatcher(opts.ControlFile, flags, logging.GetLogger("control"))
		if err := w.Start(); err != nil {
			logger.Warn().Err(err).Str("path", opts.ControlFile).Msg("control file not watched")
		} else {
			stops = append(stops, func() { _ = w.Stop() })
		}
	}

	if opts.ControlListen != "" {
		webrtc := peer.NewHandler(dist, logging.GetLogger("peer"), opts.Bus)
		mux := http.NewServeMux()
		mux.Handle("/control", control.NewServer(flags, logging.GetLogger("control")))
		mux.Handle("/webrtc", webrtc)

		ln, err := net.Listen("tcp", opts.ControlListen)
		if err != nil {
			stop()
			return nil, fmt.Errorf("caster: control listen %s: %w", opts.ControlListen, err)
		}
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("control server failed")
			}
		}()
		logger.Info().Str("addr", ln.Addr().String()).Msg("control listening")

		stops = append(stops, func() {
			webrtc.Close()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}
	return stop, nil
}
