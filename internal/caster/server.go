package caster

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/control"
	"github.com/junsooki/screencast/internal/distributor"
	"github.com/junsooki/screencast/internal/events"
	"github.com/junsooki/screencast/internal/metrics"
	"github.com/junsooki/screencast/internal/wire"
)

const (
	acceptPoll   = 100 * time.Millisecond
	writeTimeout = 5 * time.Second
)

// Server accepts subscribers and runs one writer per connection.
type Server struct {
	ln     *net.TCPListener
	dist   *distributor.Distributor
	flags  *control.Flags
	logger zerolog.Logger
	bus    *events.Bus

	// writers run on their own context so the end-of-stream sentinel
	// still goes out after the accept loop is cancelled
	writers context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[string]net.Conn
}

func newServer(ln *net.TCPListener, dist *distributor.Distributor, flags *control.Flags,
	logger zerolog.Logger, bus *events.Bus) *Server {
	writers, cancel := context.WithCancel(context.Background())
	return &Server{
		ln:      ln,
		dist:    dist,
		flags:   flags,
		logger:  logger,
		bus:     bus,
		writers: writers,
		cancel:  cancel,
		conns:   make(map[string]net.Conn),
	}
}

// Serve accepts connections until stop or terminate is set, ctx is done or
// the listener is closed. Writers outlive Serve; see Wait.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Str("addr", s.ln.Addr().String()).Msg("accepting subscribers")
	for !s.flags.Done() && ctx.Err() == nil {
		if err := s.ln.SetDeadline(time.Now().Add(acceptPoll)); err != nil {
			return err
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if wire.IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.start(conn)
	}
	return nil
}

func (s *Server) start(conn net.Conn) {
	id := uuid.NewString()
	sub := s.dist.Subscribe()

	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	s.wg.Add(1)
	go s.write(s.writers, id, conn, sub)
}

func (s *Server) write(ctx context.Context, id string, conn net.Conn, sub *distributor.Subscription) {
	remote := conn.RemoteAddr().String()
	logger := s.logger.With().Str("subscriber", id).Str("remote", remote).Logger()

	metrics.Subscribers.Inc()
	s.bus.Publish(events.SubscriberJoined{ID: id, Remote: remote, Transport: "tcp"})
	logger.Info().Msg("subscriber connected")

	var exitErr error
	defer func() {
		sub.Close()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		metrics.Subscribers.Dec()
		s.bus.Publish(events.SubscriberLeft{ID: id, Remote: remote, Err: exitErr})
		logger.Info().Err(exitErr).Msg("subscriber disconnected")
		s.wg.Done()
	}()

	for {
		payload, err := sub.Recv(ctx)
		var lag *distributor.LagError
		if errors.As(err, &lag) {
			metrics.LaggedFrames.Add(float64(lag.Skipped))
			logger.Debug().Uint64("skipped", lag.Skipped).Msg("subscriber lagged")
			continue
		}
		if err != nil {
			if !errors.Is(err, distributor.ErrClosed) {
				exitErr = err
			}
			return
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			exitErr = err
			return
		}
		n, err := wire.WriteFrame(conn, payload)
		metrics.BytesSent.Add(float64(n))
		if err != nil {
			exitErr = err
			return
		}
		if len(payload) == 0 {
			return
		}
	}
}

// Wait waits up to timeout for every writer to drain, then force-closes
// the connections still open and waits for their writers to exit.
func (s *Server) Wait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.cancel()
	select {
	case <-done:
		return
	case <-time.After(timeout):
	}

	s.cancel()
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	<-done
}
