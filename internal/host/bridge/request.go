package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// request is a PaymentRequest living in the browser.
type request struct {
	conn    *Conn
	id      string
	initial domain.PaymentDetails

	mu      sync.Mutex
	handler domain.EventHandler
}

// Subscribe implements domain.PaymentRequest.
func (r *request) Subscribe(h domain.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Show implements domain.PaymentRequest. It blocks until the payer authorizes
// or dismisses the payment sheet.
func (r *request) Show(ctx context.Context) (domain.PaymentResponse, error) {
	raw, err := r.conn.call(ctx, typeShow, requestPayload{RequestID: r.id})
	if err != nil {
		return nil, err
	}
	var inst domain.Instrument
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("bridge: show reply: %w", err)
	}
	return &response{req: r, inst: inst}, nil
}

// Abort implements domain.PaymentRequest.
func (r *request) Abort(ctx context.Context) error {
	_, err := r.conn.call(ctx, typeAbort, requestPayload{RequestID: r.id})
	if err == nil {
		r.conn.forget(r.id)
	}
	return err
}

// fire hands a browser event to the subscribed handler. The handler's
// future is forwarded to the browser once it resolves.
func (r *request) fire(ev eventPayload) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()

	updater := domain.UpdaterFunc(func(f domain.DetailsFuture) {
		go r.forward(ev.EventID, f)
	})

	if h == nil {
		r.conn.logger.Warn("bridge: event without subscriber, keeping details",
			slog.String("request_id", r.id),
			slog.String("event", ev.Name),
		)
		fut := make(chan domain.PaymentDetails, 1)
		fut <- r.initial.Clone()
		updater.UpdateWith(fut)
		return
	}

	switch ev.Name {
	case eventShippingAddressChange:
		var addr domain.Address
		if ev.Address != nil {
			addr = *ev.Address
		}
		h.OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Address: addr, Updater: updater})
	case eventShippingOptionChange:
		h.OnShippingOptionChanged(&domain.ShippingOptionChangeEvent{OptionID: ev.ShippingOption, Updater: updater})
	default:
		r.conn.logger.Warn("bridge: unknown event", slog.String("event", ev.Name))
	}
}

func (r *request) forward(eventID string, f domain.DetailsFuture) {
	var details domain.PaymentDetails
	select {
	case details = <-f:
	case <-r.conn.done:
		return
	}
	err := r.conn.write(context.Background(), envelope{
		Type:    typeUpdateWith,
		Payload: mustMarshal(updateWithPayload{RequestID: r.id, EventID: eventID, Details: details}),
	})
	if err != nil {
		r.conn.logger.Warn("bridge: unable to forward details update",
			slog.String("request_id", r.id),
			slog.String("error", err.Error()),
		)
	}
}

// probingRequest is a request whose browser supports canMakePayment.
type probingRequest struct {
	*request
}

// CanMakePayment implements domain.CapabilityProber.
func (r *probingRequest) CanMakePayment(ctx context.Context) (bool, error) {
	raw, err := r.conn.call(ctx, typeCanMakePayment, requestPayload{RequestID: r.id})
	if err != nil {
		return false, err
	}
	var res canMakePaymentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("bridge: canMakePayment reply: %w", err)
	}
	return res.Result, nil
}

// response is the instrument returned by show.
type response struct {
	req  *request
	inst domain.Instrument
}

// Instrument implements domain.PaymentResponse.
func (p *response) Instrument() domain.Instrument { return p.inst }

// Complete implements domain.PaymentResponse. The request is forgotten
// afterwards; the browser closes the payment sheet.
func (p *response) Complete(ctx context.Context, result domain.CompletionResult) error {
	defer p.req.conn.forget(p.req.id)
	_, err := p.req.conn.call(ctx, typeComplete, completePayload{RequestID: p.req.id, Result: result})
	return err
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("bridge: marshal %T: %v", v, err))
	}
	return raw
}

var (
	_ domain.PaymentRequest   = (*request)(nil)
	_ domain.CapabilityProber = (*probingRequest)(nil)
	_ domain.PaymentResponse  = (*response)(nil)
)
