// Package realtime pushes game events to websocket clients.
package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Frame is the JSON envelope sent to clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// DefaultWriteTimeout bounds a single frame write to one client.
const DefaultWriteTimeout = 5 * time.Second

// conn is the write side of a client connection.
type conn interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

type peer struct {
	mu      sync.Mutex
	conn    conn
	encoder *json.Encoder
}

func newPeer(c conn) *peer {
	return &peer{conn: c, encoder: json.NewEncoder(c)}
}

func (p *peer) writeFrame(frame Frame, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return p.encoder.Encode(frame)
}

// Hub tracks connected clients and fans events out to all of them.
type Hub struct {
	mu     sync.Mutex
	peers  map[*peer]struct{}
	logger *slog.Logger

	// WriteTimeout bounds each frame write. A client that does not accept
	// the frame in time is dropped.
	WriteTimeout time.Duration
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		peers:        make(map[*peer]struct{}),
		logger:       logger,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) join(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	connectedClients.Inc()
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	if ok {
		connectedClients.Dec()
	}
}

func (h *Hub) snapshot() []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}

// Broadcast sends the event to every connected client concurrently and
// returns once each write finished or timed out. Clients that cannot be
// written to are dropped.
func (h *Hub) Broadcast(event string, payload any) {
	frame := Frame{Event: event, Data: payload}
	var wg sync.WaitGroup
	for _, p := range h.snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.writeFrame(frame, h.WriteTimeout); err != nil {
				h.logger.Warn("dropping websocket client", "event", event, "error", err)
				h.leave(p)
			}
		}()
	}
	wg.Wait()
	framesSent.WithLabelValues(event).Inc()
}

// Handler returns the websocket endpoint. Clients only receive; anything
// they send is read and discarded until the connection closes.
func (h *Hub) Handler() http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

func (h *Hub) serve(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	p := newPeer(conn)
	h.join(p)
	defer h.leave(p)
	h.logger.Info("websocket client connected", "remote", conn.Request().RemoteAddr)

	decoder := json.NewDecoder(conn)
	for {
		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("websocket read ended", "error", err)
			}
			h.logger.Info("websocket client disconnected", "remote", conn.Request().RemoteAddr)
			return
		}
	}
}
