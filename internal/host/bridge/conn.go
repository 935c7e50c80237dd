package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/webpay/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
	helloWait      = 5 * time.Second
)

// Conn is one connected browser. It implements domain.Host by turning each
// host call into a request frame and waiting for the matching reply.
type Conn struct {
	hub     *Hub
	conn    *websocket.Conn
	session string
	send    chan []byte
	logger  *slog.Logger

	hello     chan struct{}
	helloOnce sync.Once
	features  helloPayload

	mu       sync.Mutex
	pending  map[string]chan envelope
	requests map[string]*request

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, session string) *Conn {
	return &Conn{
		hub:      h,
		conn:     ws,
		session:  session,
		send:     make(chan []byte, sendBufferSize),
		logger:   h.logger.With(slog.String("session_id", session)),
		hello:    make(chan struct{}),
		pending:  make(map[string]chan envelope),
		requests: make(map[string]*request),
		done:     make(chan struct{}),
	}
}

// SessionID implements domain.Host.
func (c *Conn) SessionID() string { return c.session }

// Supported waits for the browser's feature detection. A browser that never
// says hello is treated as unsupported.
func (c *Conn) Supported(ctx context.Context) bool {
	t := time.NewTimer(helloWait)
	defer t.Stop()
	select {
	case <-c.hello:
		return c.detected().PaymentRequest
	case <-t.C:
	case <-c.done:
	case <-ctx.Done():
	}
	return false
}

// NewRequest implements domain.Host.
func (c *Conn) NewRequest(ctx context.Context, methods []domain.PaymentMethodData, details domain.PaymentDetails, opts domain.PaymentOptions) (domain.PaymentRequest, error) {
	r := &request{
		conn:    c,
		id:      uuid.NewString(),
		initial: details.Clone(),
	}
	c.mu.Lock()
	c.requests[r.id] = r
	c.mu.Unlock()

	_, err := c.call(ctx, typeCreate, createPayload{
		RequestID: r.id,
		Methods:   methods,
		Details:   details,
		Options:   opts,
	})
	if err != nil {
		c.forget(r.id)
		return nil, err
	}
	if c.detected().CanMakePayment {
		return &probingRequest{request: r}, nil
	}
	return r, nil
}

// ConfirmRedirect implements domain.Host.
func (c *Conn) ConfirmRedirect(ctx context.Context, prompt, url string) (bool, error) {
	raw, err := c.call(ctx, typeConfirmRedirect, confirmPayload{Prompt: prompt, URL: url})
	if err != nil {
		return false, err
	}
	var res confirmResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("bridge: confirm reply: %w", err)
	}
	return res.Accepted, nil
}

// DisplayResult implements domain.Host.
func (c *Conn) DisplayResult(ctx context.Context, pretty string) error {
	_, err := c.call(ctx, typeDisplayResult, displayPayload{Text: pretty})
	return err
}

// call sends a frame and waits for its reply.
func (c *Conn) call(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bridge: %s: %w", typ, err)
	}
	id := uuid.NewString()
	reply := make(chan envelope, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, envelope{ID: id, Type: typ, Payload: raw}); err != nil {
		return nil, fmt.Errorf("bridge: %s: %w", typ, err)
	}

	select {
	case env := <-reply:
		switch {
		case env.Unsupported:
			return nil, fmt.Errorf("bridge: %s: %w", typ, domain.ErrHostUnsupported)
		case !env.OK:
			return nil, fmt.Errorf("bridge: %s: %s", typ, env.Error)
		}
		return env.Payload, nil
	case <-c.done:
		return nil, fmt.Errorf("bridge: %s: %w", typ, domain.ErrHostDisconnected)
	case <-ctx.Done():
		return nil, fmt.Errorf("bridge: %s: %w", typ, ctx.Err())
	}
}

// write queues a frame for the write pump.
func (c *Conn) write(ctx context.Context, env envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return domain.ErrHostDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) forget(requestID string) {
	c.mu.Lock()
	delete(c.requests, requestID)
	c.mu.Unlock()
}

// close stops the pumps. The write pump sends the close frame.
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// detected returns the feature detection, or nothing if the browser has not
// said hello yet.
func (c *Conn) detected() helloPayload {
	select {
	case <-c.hello:
		return c.features
	default:
		return helloPayload{}
	}
}

// Done is closed once the browser disconnects.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readPump() {
	defer func() {
		c.close()
		c.hub.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("bridge: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("bridge: malformed frame", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env envelope) {
	switch env.Type {
	case typeHello:
		c.helloOnce.Do(func() {
			if err := json.Unmarshal(env.Payload, &c.features); err != nil {
				c.logger.Warn("bridge: malformed hello", slog.String("error", err.Error()))
			}
			close(c.hello)
		})

	case typeReply:
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("bridge: reply for unknown call", slog.String("id", env.ID))
			return
		}
		select {
		case ch <- env:
		default:
			c.logger.Warn("bridge: duplicate reply", slog.String("id", env.ID))
		}

	case typeEvent:
		var ev eventPayload
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn("bridge: malformed event", slog.String("error", err.Error()))
			return
		}
		c.mu.Lock()
		r, ok := c.requests[ev.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("bridge: event for unknown request", slog.String("request_id", ev.RequestID))
			return
		}
		r.fire(ev)

	default:
		c.logger.Warn("bridge: unknown frame type", slog.String("type", env.Type))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

var _ domain.Host = (*Conn)(nil)
