// Package bridge lets a browser act as the payment host. The browser page
// keeps a WebSocket open; every host call the negotiator makes becomes a
// JSON frame the page executes against its own PaymentRequest, and the
// page's payment events flow back the same way.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// Hub tracks the connected browsers by session.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *Conn
	unregister chan *Conn
	stopped    chan struct{}
	logger     *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub creates a hub. Browsers are accepted from any of allowedOrigins;
// an empty list or "*" accepts every origin.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		stopped:    make(chan struct{}),
		logger:     logger.With(slog.String("component", "bridge")),
		conns:      make(map[string]*Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run owns the session registry until ctx is cancelled, then disconnects
// every browser.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s, c := range h.conns {
				c.close()
				delete(h.conns, s)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.conns[c.session]; ok {
				h.logger.Info("bridge: replacing browser connection", slog.String("session_id", c.session))
				old.close()
			}
			h.conns[c.session] = c
			total := len(h.conns)
			h.mu.Unlock()
			h.logger.Info("bridge: browser connected",
				slog.String("session_id", c.session),
				slog.Int("total_sessions", total),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.conns[c.session]; ok && cur == c {
				delete(h.conns, c.session)
			}
			total := len(h.conns)
			h.mu.Unlock()
			h.logger.Info("bridge: browser disconnected",
				slog.String("session_id", c.session),
				slog.Int("total_sessions", total),
			)
		}
	}
}

func (h *Hub) remove(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Host returns the browser connected for session.
func (h *Hub) Host(session string) (domain.Host, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[session]
	if !ok {
		return nil, fmt.Errorf("bridge: session %q: %w", session, domain.ErrHostDisconnected)
	}
	return c, nil
}

// Sessions returns the number of connected browsers.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWS upgrades the request and registers the browser. The session is
// taken from the "session" query parameter, or minted and announced in the
// welcome frame.
// GET /ws/host
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	session := strings.TrimSpace(r.URL.Query().Get("session"))
	if session == "" {
		session = uuid.NewString()
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("bridge: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newConn(h, ws, session)
	select {
	case h.register <- c:
	case <-h.stopped:
		ws.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	if err := c.write(r.Context(), envelope{
		Type:    typeWelcome,
		Payload: mustMarshal(welcomePayload{Session: session}),
	}); err != nil {
		h.logger.Warn("bridge: unable to welcome browser", slog.String("error", err.Error()))
	}
}
