package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/distributor"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/metrics"
)

// gatherTimeout bounds ICE gathering before the answer is returned.
const gatherTimeout = 5 * time.Second

// Host is one WebRTC viewer fed by a distributor subscription.
type Host struct {
	id     string
	pc     *webrtc.PeerConnection
	frames *webrtc.DataChannel
	dist   *distributor.Distributor
	logger zerolog.Logger
	bus    *events.Bus

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func(id string)
}

// NewHost creates a peer connection with a "frames" data channel. Frames
// are unordered with no retransmits: a late frame is worth nothing.
func NewHost(dist *distributor.Distributor, logger zerolog.Logger, bus *events.Bus) (*Host, error) {
	id := uuid.NewString()
	logger = logger.With().Str("peer", id).Logger()

	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	ordered := false
	maxRetransmits := uint16(0)
	frames, err := pc.CreateDataChannel("frames", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		id:     id,
		pc:     pc,
		frames: frames,
		dist:   dist,
		logger: logger,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
	}

	frames.OnOpen(func() {
		logger.Info().Msg("frames data channel open")
		go h.forward()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug().Str("state", state.String()).Msg("peer connection state")
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.Close()
		}
	})
	return h, nil
}

// ID returns the subscriber id.
func (h *Host) ID() string { return h.id }

// Answer applies the remote offer and returns the local answer once ICE
// gathering has completed, so no trickle signaling is needed.
func (h *Host) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("peer: expected offer, got %s", offer.Type)
	}
	if err := h.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("peer: set remote description: %w", err)
	}
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("peer: create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(h.pc)
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("peer: set local description: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, fmt.Errorf("peer: ice gathering: %w", ctx.Err())
	}
	return h.pc.LocalDescription(), nil
}

func (h *Host) forward() {
	sub := h.dist.Subscribe()
	defer sub.Close()
	metrics.Subscribers.Inc()
	defer metrics.Subscribers.Dec()
	h.bus.Publish(events.SubscriberJoined{ID: h.id, Transport: "webrtc"})

	var exitErr error
	defer func() {
		h.bus.Publish(events.SubscriberLeft{ID: h.id, Err: exitErr})
		h.Close()
	}()

	for {
		payload, err := sub.Recv(h.ctx)
		var lag *distributor.LagError
		if errors.As(err, &lag) {
			metrics.LaggedFrames.Add(float64(lag.Skipped))
			h.logger.Debug().Uint64("skipped", lag.Skipped).Msg("viewer lagged")
			continue
		}
		if err != nil {
			return
		}
		if len(payload) == 0 {
			h.logger.Info().Msg("stream ended")
			return
		}
		if err := h.frames.Send(payload); err != nil {
			exitErr = err
			h.logger.Warn().Err(err).Msg("data channel send failed")
			return
		}
		metrics.BytesSent.Add(float64(len(payload)))
	}
}

// Close shuts down the peer connection. Safe to call more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		if err := h.pc.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("peer close")
		}
		if h.onClose != nil {
			h.onClose(h.id)
		}
	})
}
