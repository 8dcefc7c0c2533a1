package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/config"
	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/display"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/logging"
	"github.com/junsooki/screencast/internal/metrics"
	"github.com/junsooki/screencast/internal/receiver"
	"github.com/junsooki/screencast/internal/recording"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.DefaultReceiverOptions()
	cmd := &cobra.Command{
		Use:          "receiver",
		Short:        "Watch and record a caster's stream",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(&opts, cmd); err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Config, "config", "c", opts.Config, "Path to configuration file")
	f.StringVarP(&opts.Connect, "connect", "a", opts.Connect, "Caster address")
	f.StringVar(&opts.Codec, "codec", opts.Codec, "Frame codec used by the caster: jpeg or png")
	f.StringVarP(&opts.RecordDir, "record-dir", "o", opts.RecordDir, "Directory for recordings")
	f.BoolVar(&opts.Record, "record", opts.Record, "Start recording as soon as the session begins")
	f.BoolVar(&opts.Window, "window", opts.Window, "Show the stream in a window")
	f.StringVar(&opts.FFmpeg, "ffmpeg", opts.FFmpeg, "ffmpeg binary used to finalize recordings")
	f.DurationVar(&opts.StallTimeout, "stall-timeout", opts.StallTimeout, "Silence before the stream counts as stalled")
	f.StringVar(&opts.MetricsListen, "metrics-listen", opts.MetricsListen, "Prometheus /metrics address (empty = off)")
	f.StringVar(&opts.LoggingLevel, "logging-level", opts.LoggingLevel, "Log level (trace, debug, info, warn, error)")
	f.StringVar(&opts.LoggingFormat, "logging-format", opts.LoggingFormat, "Log format (text, json)")
	return cmd
}

func run(ctx context.Context, opts config.ReceiverOptions) error {
	logging.Initialize(opts.Logging())
	logger := logging.GetLogger("receiver")

	c, err := codec.New(opts.Codec, codec.DefaultQuality)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := control.NewFlags()
	go func() {
		<-ctx.Done()
		flags.Stop.Store(true)
	}()

	bus := events.New()
	evLogger := logging.GetLogger("events")
	defer bus.Subscribe(func(e events.ReceiverStateChanged) {
		evLogger.Debug().Str("from", e.From).Str("to", e.To).Err(e.Err).Msg("receiver state")
	})()

	if opts.MetricsListen != "" {
		go metrics.Serve(ctx, opts.MetricsListen, logging.GetLogger("metrics"))
	}

	recLogger := logging.GetLogger("recording")
	rec := recording.New(recording.Options{
		Dir:       opts.RecordDir,
		Codec:     codec.NewJPEG(codec.DefaultQuality),
		Finalizer: &recording.FFmpegFinalizer{Binary: opts.FFmpeg, Logger: recLogger},
		Logger:    recLogger,
		Bus:       bus,
	})
	defer rec.Wait()
	if opts.Record {
		if _, err := rec.Start(); err != nil {
			return err
		}
	}

	slot := receiver.NewDisplaySlot()
	var connected atomic.Bool
	ropts := receiver.Options{
		Address:      opts.Connect,
		Codec:        c,
		StallTimeout: opts.StallTimeout,
		Logger:       logger,
		Bus:          bus,
	}

	if !opts.Window {
		return receiver.Start(ctx, ropts, flags, slot, rec, &connected)
	}

	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		defer close(done)
		errc <- receiver.Start(ctx, ropts, flags, slot, rec, &connected)
	}()

	viewer := display.NewViewer(slot, flags, rec, &connected, done, bus, logging.GetLogger("display"))
	if err := viewer.Run("screencast " + opts.Connect); err != nil {
		logger.Error().Err(err).Msg("viewer failed")
	}
	flags.Stop.Store(true)
	return <-errc
}
