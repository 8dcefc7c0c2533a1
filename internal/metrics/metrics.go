// Package metrics provides Prometheus metrics for the caster, the receiver
// and the recorder.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "screencast"

// Kinds of published frames.
const (
	KindFrame     = "frame"
	KindHeartbeat = "heartbeat"
	KindBlank     = "blank"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "caster", Name: "frames_captured_total",
		Help: "Frames read from the capture device",
	})
	FramesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "caster", Name: "frames_published_total",
		Help: "Payloads published to the distributor by kind",
	}, []string{"kind"})
	CaptureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "caster", Name: "capture_errors_total",
		Help: "Capture device or encode failures",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "caster", Name: "subscribers",
		Help: "Connected subscribers (TCP and WebRTC)",
	})
	LaggedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "caster", Name: "lagged_frames_total",
		Help: "Frames skipped by slow subscribers",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "caster", Name: "bytes_sent_total",
		Help: "Bytes written to subscribers including headers",
	})

	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "frames_received_total",
		Help: "Frames read and decoded by the receiver",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "decode_errors_total",
		Help: "Payloads that failed to decode",
	})
	Stalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "stalls_total",
		Help: "Transitions into the stalled state",
	})
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "bytes_received_total",
		Help: "Payload bytes read by the receiver",
	})

	RecordedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "recording", Name: "frames_total",
		Help: "Frames persisted by the recorder",
	})
	Recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "recording", Name: "finalized_total",
		Help: "Finalized recordings by result",
	}, []string{"result"})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
