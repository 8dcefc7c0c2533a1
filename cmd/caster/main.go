package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/junsooki/screencast/internal/capture"
	"github.com/junsooki/screencast/internal/caster"
	"github.com/junsooki/screencast/internal/codec"
	"github.com/junsooki/screencast/internal/config"
	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/logging"
	"github.com/junsooki/screencast/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.DefaultCasterOptions()
	cmd := &cobra.Command{
		Use:          "caster",
		Short:        "Capture a display and broadcast it to receivers over TCP",
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
	f.StringVarP(&opts.Listen, "listen", "l", opts.Listen, "Address subscribers connect to")
	f.StringVar(&opts.Source, "source", opts.Source, "Frame source: display or pattern")
	f.IntVarP(&opts.Display, "display", "d", opts.Display, "Display index to capture (0 = primary)")
	f.StringVarP(&opts.Region, "region", "r", opts.Region, "Capture region x0,y0,x1,y1 (empty = full display)")
	f.StringVar(&opts.Codec, "codec", opts.Codec, "Frame codec: jpeg or png")
	f.IntVarP(&opts.Quality, "quality", "q", opts.Quality, "JPEG quality (1-100)")
	f.DurationVar(&opts.Interval, "interval", opts.Interval, "Capture interval")
	f.IntVar(&opts.Buffer, "buffer", opts.Buffer, "Frames buffered per subscriber before dropping")
	f.StringVar(&opts.ControlListen, "control-listen", opts.ControlListen, "HTTP address for /control and /webrtc (empty = off)")
	f.StringVar(&opts.ControlFile, "control-file", opts.ControlFile, "TOML file with paused/blanked/terminate, reloaded on change")
	f.StringVar(&opts.MetricsListen, "metrics-listen", opts.MetricsListen, "Prometheus /metrics address (empty = off)")
	f.StringVar(&opts.LoggingLevel, "logging-level", opts.LoggingLevel, "Log level (trace, debug, info, warn, error)")
	f.StringVar(&opts.LoggingFormat, "logging-format", opts.LoggingFormat, "Log format (text, json)")

	cmd.AddCommand(newControlCmd())
	return cmd
}

func run(ctx context.Context, opts config.CasterOptions) error {
	logging.Initialize(opts.Logging())
	logger := logging.GetLogger("caster")

	region, err := capture.ParseRegion(opts.Region)
	if err != nil {
		return err
	}
	c, err := codec.New(opts.Codec, opts.Quality)
	if err != nil {
		return err
	}
	display := opts.Display
	switch opts.Source {
	case "display", "":
	case "pattern":
		display = caster.PatternDisplay
	default:
		return fmt.Errorf("unknown source %q", opts.Source)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := control.NewFlags()
	go func() {
		<-ctx.Done()
		flags.Terminate.Store(true)
	}()

	bus := events.New()
	evLogger := logging.GetLogger("events")
	defer bus.Subscribe(func(e events.SubscriberJoined) {
		evLogger.Debug().Str("id", e.ID).Str("remote", e.Remote).Str("transport", e.Transport).Msg("subscriber joined")
	})()
	defer bus.Subscribe(func(e events.SubscriberLeft) {
		evLogger.Debug().Str("id", e.ID).Err(e.Err).Msg("subscriber left")
	})()

	if opts.MetricsListen != "" {
		go metrics.Serve(ctx, opts.MetricsListen, logging.GetLogger("metrics"))
	}

	logger.Info().
		Str("listen", opts.Listen).
		Int("display", display).
		Str("region", opts.Region).
		Str("codec", c.Name()).
		Dur("interval", opts.Interval).
		Msg("caster starting")

	return caster.Start(ctx, caster.Options{
		Listen:        opts.Listen,
		DisplayIndex:  display,
		Region:        region,
		Codec:         c,
		Interval:      opts.Interval,
		Buffer:        opts.Buffer,
		ControlListen: opts.ControlListen,
		ControlFile:   opts.ControlFile,
		Logger:        logger,
		Bus:           bus,
	}, flags)
}
