package peer

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/junsooki/screencast/internal/distributor"
	"github.com/junsooki/screencast/internal/events"
)

// maxOfferSize caps the request body of an SDP offer.
const maxOfferSize = 64 * 1024

// Handler accepts SDP offers over HTTP POST and answers with a Host per
// viewer.
type Handler struct {
	dist   *distributor.Distributor
	logger zerolog.Logger
	bus    *events.Bus

	mu     sync.Mutex
	hosts  map[string]*Host
	closed bool
}

// NewHandler creates a WebRTC offer endpoint publishing dist.
func NewHandler(dist *distributor.Distributor, logger zerolog.Logger, bus *events.Bus) *Handler {
	return &Handler{
		dist:   dist,
		logger: logger,
		bus:    bus,
		hosts:  make(map[string]*Host),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOfferSize)).Decode(&offer); err != nil {
		http.Error(w, "invalid offer: "+err.Error(), http.StatusBadRequest)
		return
	}

	host, err := NewHost(h.dist, h.logger, h.bus)
	if err != nil {
		h.logger.Error().Err(err).Msg("create host peer")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !h.add(host) {
		host.Close()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	answer, err := host.Answer(r.Context(), offer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("answer offer")
		host.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info().Str("peer", host.ID()).Str("remote", r.RemoteAddr).Msg("webrtc viewer negotiated")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

func (h *Handler) add(host *Host) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.hosts[host.ID()] = host
	host.onClose = h.remove
	return true
}

func (h *Handler) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hosts, id)
}

// Peers returns the number of live viewers.
func (h *Handler) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

// Close shuts down every viewer.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	hosts := make([]*Host, 0, len(h.hosts))
	for _, host := range h.hosts {
		hosts = append(hosts, host)
	}
	h.mu.Unlock()

	for _, host := range hosts {
		host.Close()
	}
}
