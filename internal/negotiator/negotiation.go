package negotiator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/shipping"
)

const eventQueueSize = 16

// job mutates the negotiation's details. Jobs run one at a time on the
// negotiation's event loop, which is the only goroutine touching details.
type job func(ctx context.Context, details *domain.PaymentDetails)

// Negotiation is one attempt to collect an instrument from the payer. It
// implements domain.EventHandler and is subscribed to its request.
type Negotiation struct {
	ID        string
	SessionID string

	n        *Negotiator
	req      domain.PaymentRequest
	base     decimal.Decimal
	currency string
	logger   *slog.Logger

	details domain.PaymentDetails

	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan job
	stopped chan struct{}
	mu      sync.Mutex
	closed  bool
	lateMu  sync.Mutex
}

func newNegotiation(ctx context.Context, n *Negotiator, id, sessionID string, req domain.PaymentRequest, details domain.PaymentDetails, base decimal.Decimal) *Negotiation {
	ctx, cancel := context.WithCancel(ctx)
	g := &Negotiation{
		ID:        id,
		SessionID: sessionID,
		n:         n,
		req:       req,
		base:      base,
		currency:  details.Total.Amount.Currency,
		logger:    n.logger.With(slog.String("negotiation_id", id)),
		details:   details.Clone(),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(chan job, eventQueueSize),
		stopped:   make(chan struct{}),
	}
	go g.loop()
	req.Subscribe(g)
	return g
}

func (g *Negotiation) loop() {
	defer close(g.stopped)
	for j := range g.jobs {
		j(g.ctx, &g.details)
	}
}

// enqueue hands j to the event loop without waiting for it, so jobs run in
// the order their events arrived. Once the negotiation is closed, j runs on
// the caller's goroutine instead.
func (g *Negotiation) enqueue(j job) {
	g.mu.Lock()
	if !g.closed {
		g.jobs <- j
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	<-g.stopped
	g.lateMu.Lock()
	defer g.lateMu.Unlock()
	j(context.WithoutCancel(g.ctx), &g.details)
}

// post runs j like enqueue and waits for it to finish.
func (g *Negotiation) post(j job) {
	done := make(chan struct{})
	g.enqueue(func(ctx context.Context, d *domain.PaymentDetails) {
		defer close(done)
		j(ctx, d)
	})
	<-done
}

// Close drains pending events and stops the event loop. Events fired
// afterwards are still answered. Close is idempotent.
func (g *Negotiation) Close() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.jobs)
	}
	g.mu.Unlock()
	<-g.stopped
	g.cancel()
}

// Details returns a snapshot of the current descriptor.
func (g *Negotiation) Details() domain.PaymentDetails {
	var out domain.PaymentDetails
	g.post(func(_ context.Context, d *domain.PaymentDetails) {
		out = d.Clone()
	})
	return out
}

// ProbeCapability asks whether the payer's device can complete this payment.
func (g *Negotiation) ProbeCapability(ctx context.Context) (bool, error) {
	return g.n.prober.Probe(ctx, g.SessionID, g.req)
}

// Begin probes capability and shows the payment UI. It returns
// domain.ErrNotCapable when the device cannot pay, and
// domain.ErrNegotiationAborted when the timeout aborted the request.
func (g *Negotiation) Begin(ctx context.Context) (domain.PaymentResponse, error) {
	capable, err := g.ProbeCapability(ctx)
	if err != nil {
		return nil, err
	}
	if !capable {
		return nil, domain.ErrNotCapable
	}
	return showWithDeadline(ctx, g.req, g.n.cfg.Timeout, g.logger)
}

// OnShippingAddressChanged quotes shipping for the new address and answers
// the host with the recalculated details. The answer is always delivered;
// when the quote fails the current options are kept.
func (g *Negotiation) OnShippingAddressChanged(ev *domain.ShippingAddressChangeEvent) {
	fut := make(chan domain.PaymentDetails, 1)
	ev.UpdateWith(fut)

	addr := ev.Address
	g.enqueue(func(ctx context.Context, d *domain.PaymentDetails) {
		options := d.ShippingOptions
		quoted, err := g.n.quoter.QuoteShipping(ctx, addr)
		if err != nil {
			lvl := slog.LevelWarn
			if !errors.Is(err, domain.ErrShippingQuoteUnavailable) {
				lvl = slog.LevelError
			}
			g.logger.Log(ctx, lvl, "unable to calculate shipping options",
				slog.String("city", addr.City),
				slog.String("country", addr.Country),
				slog.String("error", err.Error()),
			)
		} else {
			options = quoted
		}
		fut <- g.recalculate(ctx, d, options)
	})
}

// OnShippingOptionChanged selects the payer's option and answers the host
// with the recalculated details.
func (g *Negotiation) OnShippingOptionChanged(ev *domain.ShippingOptionChangeEvent) {
	fut := make(chan domain.PaymentDetails, 1)
	ev.UpdateWith(fut)

	id := ev.OptionID
	g.enqueue(func(ctx context.Context, d *domain.PaymentDetails) {
		fut <- g.recalculate(ctx, d, shipping.SelectOption(d.ShippingOptions, id))
	})
}

// recalculate applies options to d and returns a snapshot for the host. An
// option list that cannot be priced falls back to no shipping at all.
func (g *Negotiation) recalculate(ctx context.Context, d *domain.PaymentDetails, options []domain.ShippingOption) domain.PaymentDetails {
	u, err := shipping.Recalculate(g.base, g.currency, options)
	if err != nil {
		g.logger.WarnContext(ctx, "dropping unpriceable shipping options",
			slog.String("error", err.Error()),
		)
		u, _ = shipping.Recalculate(g.base, g.currency, nil)
	}
	shipping.Apply(d, u)
	return d.Clone()
}

var _ domain.EventHandler = (*Negotiation)(nil)
