// Package notify tells operators how payments ended. Outcomes are queued and
// delivered in the background to every configured channel, so a slow webhook
// never holds up the payer's sheet.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const queueSize = 64

// Message is one outcome notification.
type Message struct {
	Event string
	Title string
	Body  string
	At    time.Time
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans messages out to its senders. Only events in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan Message
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Messages are delivered once Run is started.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan Message, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify queues a message for event. It never blocks: when the queue is full
// the message is dropped and an error returned.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	msg := Message{Event: event, Title: title, Body: message, At: time.Now().UTC()}
	select {
	case n.queue <- msg:
		return nil
	default:
		return fmt.Errorf("notify: queue full, dropping %s", event)
	}
}

// Run delivers queued messages until ctx is cancelled. Messages still queued
// at that point are delivered with a short grace period.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-n.queue:
			_ = n.dispatch(ctx, msg)
		case <-ctx.Done():
			n.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

func (n *Notifier) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-n.queue:
			_ = n.dispatch(ctx, msg)
		default:
			return
		}
	}
}

// dispatch sends msg to every sender. A failing sender does not prevent
// delivery to the others.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", msg.Event),
		)
	}
	return errors.Join(errs...)
}
