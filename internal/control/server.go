package control

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server exposes Flags over a websocket. Each inbound message is applied
// and answered with the resulting state.
type Server struct {
	flags  *Flags
	logger zerolog.Logger
}

// NewServer creates a websocket control endpoint bound to flags.
func NewServer(flags *Flags, logger zerolog.Logger) *Server {
	return &Server{flags: flags, logger: logger}
}

// ServeHTTP upgrades the request and serves control messages until the
// peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("control upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("control client connected")
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("control read ended")
			}
			return
		}
		if err := conn.WriteJSON(s.handle(msg)); err != nil {
			s.logger.Debug().Err(err).Msg("control write failed")
			return
		}
	}
}

func (s *Server) handle(msg Message) Message {
	switch msg.Type {
	case TypePing:
		return Message{Type: TypePong, Timestamp: time.Now().UnixMilli()}
	case TypeState:
	default:
		if !Apply(s.flags, msg.Type) {
			return Message{Type: TypeError, Msg: "unknown message type " + msg.Type}
		}
		s.logger.Info().Str("command", msg.Type).Msg("control command applied")
	}
	snap := s.flags.Snapshot()
	return Message{Type: TypeState, State: &snap, Timestamp: time.Now().UnixMilli()}
}
