package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/wire"
)

// Hub relays every message a peer sends to all other connected peers.
// It does not interpret payloads.
type Hub struct {
	settings *Settings
	upgrader websocket.Upgrader
	log      *slog.Logger
	rec      metrics.HubRecorder

	mu    sync.RWMutex
	peers map[string]*Link
	wg    sync.WaitGroup
	ctx   context.Context
	stop  context.CancelFunc
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithHubRecorder sets the relay metrics recorder.
func WithHubRecorder(r metrics.HubRecorder) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.rec = r
		}
	}
}

// WithCheckOrigin overrides the websocket origin check. The default
// accepts any origin.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// AllowOrigins returns an origin check accepting requests without an
// Origin header (non-browser peers) and those whose Origin is listed.
// An empty list accepts everything.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// NewHub creates a hub. settings may be nil.
func NewHub(settings *Settings, opts ...HubOption) *Hub {
	if settings == nil {
		settings = DefaultSettings()
	}
	ctx, stop := context.WithCancel(context.Background())
	h := &Hub{
		settings: settings,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: settings.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log:   slog.Default(),
		rec:   metrics.Nop{},
		peers: make(map[string]*Link),
		ctx:   ctx,
		stop:  stop,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := ulid.Make().String()
	link := NewLink(id, ws, h.settings, h.log)
	if !h.add(link) {
		link.Close()
		_ = ws.Close()
		return
	}
	defer h.remove(id)

	h.log.Info("peer connected", "peer", id, "remote", r.RemoteAddr)
	err = link.Run(h.ctx, func(_ context.Context, msg wire.Message) {
		h.relay(id, msg)
	})
	if err != nil {
		h.log.Info("peer disconnected", "peer", id, "error", err)
		return
	}
	h.log.Info("peer disconnected", "peer", id)
}

func (h *Hub) add(l *Link) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.peers[l.ID()] = l
	h.wg.Add(1)
	h.rec.PeerConnected()
	return true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[id]; !ok {
		return
	}
	delete(h.peers, id)
	h.wg.Done()
	h.rec.PeerDisconnected()
}

func (h *Hub) relay(from string, msg wire.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	fanout := 0
	for id, peer := range h.peers {
		if id == from {
			continue
		}
		peer.Enqueue(msg)
		fanout++
	}
	h.rec.Relayed(msg.Type, fanout)
	h.log.Debug("relayed", "from", from, "type", msg.Type.String(), "fanout", fanout)
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer and waits for their handlers to return.
// Peers connecting after Close are refused.
func (h *Hub) Close() {
	// Under mu so no add can pass its ctx check and call wg.Add after
	// Wait has started.
	h.mu.Lock()
	h.stop()
	h.mu.Unlock()
	h.wg.Wait()
}
