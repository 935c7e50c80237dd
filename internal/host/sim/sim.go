// Package sim is a scripted payer. It plays the browser's part so the whole
// negotiation can run from a terminal: it picks an address and a shipping
// option, waits for every recalculation, and authorizes the payment.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// Capability answers for the scripted device.
const (
	CapabilityYes      = "yes"
	CapabilityNo       = "no"
	CapabilityUnprobed = "unprobed"
)

const updateWait = 30 * time.Second

// ErrAborted is returned by Show when the request was aborted.
var ErrAborted = errors.New("sim: payment request aborted")

// Config scripts the payer.
type Config struct {
	Session        string
	Capability     string
	MethodName     string
	Address        domain.Address
	OptionID       string
	PayerName      string
	PayerPhone     string
	PayerEmail     string
	ThinkTime      time.Duration
	AcceptRedirect bool
	AbortFails     bool
}

// Host is the simulated device.
type Host struct {
	cfg    Config
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	updates []domain.PaymentDetails
	results []domain.CompletionResult
}

// New creates a simulated host printing to out.
func New(cfg Config, out io.Writer, logger *slog.Logger) *Host {
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.Capability == "" {
		cfg.Capability = CapabilityYes
	}
	return &Host{
		cfg:    cfg,
		out:    out,
		logger: logger.With(slog.String("component", "sim")),
	}
}

// SessionID implements domain.Host.
func (h *Host) SessionID() string { return h.cfg.Session }

// Supported implements domain.Host.
func (h *Host) Supported(context.Context) bool { return true }

// NewRequest implements domain.Host.
func (h *Host) NewRequest(_ context.Context, methods []domain.PaymentMethodData, details domain.PaymentDetails, opts domain.PaymentOptions) (domain.PaymentRequest, error) {
	method := h.cfg.MethodName
	if method == "" && len(methods) > 0 && len(methods[0].SupportedMethods) > 0 {
		method = methods[0].SupportedMethods[0]
	}
	r := &request{
		host:    h,
		method:  method,
		opts:    opts,
		details: details.Clone(),
		aborted: make(chan struct{}),
	}
	if h.cfg.Capability == CapabilityUnprobed {
		return r, nil
	}
	return &probingRequest{request: r}, nil
}

// ConfirmRedirect implements domain.Host.
func (h *Host) ConfirmRedirect(_ context.Context, prompt, url string) (bool, error) {
	answer := "no"
	if h.cfg.AcceptRedirect {
		answer = "yes"
	}
	_, err := fmt.Fprintf(h.out, "%s [%s] %s\n", prompt, url, answer)
	return h.cfg.AcceptRedirect, err
}

// DisplayResult implements domain.Host.
func (h *Host) DisplayResult(_ context.Context, pretty string) error {
	_, err := fmt.Fprintln(h.out, pretty)
	return err
}

// Updates returns every details update the payer was shown.
func (h *Host) Updates() []domain.PaymentDetails {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.PaymentDetails(nil), h.updates...)
}

// Results returns the completion results the payer received.
func (h *Host) Results() []domain.CompletionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.CompletionResult(nil), h.results...)
}

type request struct {
	host    *Host
	method  string
	opts    domain.PaymentOptions
	details domain.PaymentDetails

	mu        sync.Mutex
	handler   domain.EventHandler
	abortOnce sync.Once
	aborted   chan struct{}
}

func (r *request) Subscribe(h domain.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Show walks the scripted payer through the sheet.
func (r *request) Show(ctx context.Context) (domain.PaymentResponse, error) {
	if err := r.think(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()

	cfg := r.host.cfg
	if r.opts.RequestShipping && h != nil {
		d, err := r.await(ctx, func(u domain.Updater) {
			h.OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Address: cfg.Address, Updater: u})
		})
		if err != nil {
			return nil, err
		}
		r.details = d

		if cfg.OptionID != "" {
			d, err := r.await(ctx, func(u domain.Updater) {
				h.OnShippingOptionChanged(&domain.ShippingOptionChangeEvent{OptionID: cfg.OptionID, Updater: u})
			})
			if err != nil {
				return nil, err
			}
			r.details = d
		}
	}

	if err := r.think(ctx); err != nil {
		return nil, err
	}
	return &response{host: r.host, inst: r.instrument()}, nil
}

func (r *request) think(ctx context.Context) error {
	t := time.NewTimer(r.host.cfg.ThinkTime)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-r.aborted:
		return ErrAborted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await fires an event and waits for the handler's future.
func (r *request) await(ctx context.Context, fire func(domain.Updater)) (domain.PaymentDetails, error) {
	futures := make(chan domain.DetailsFuture, 1)
	fire(domain.UpdaterFunc(func(f domain.DetailsFuture) { futures <- f }))

	t := time.NewTimer(updateWait)
	defer t.Stop()

	var f domain.DetailsFuture
	select {
	case f = <-futures:
	default:
		// The handler did not call UpdateWith; the sheet keeps its details.
		return r.details, nil
	}

	select {
	case d := <-f:
		r.host.mu.Lock()
		r.host.updates = append(r.host.updates, d)
		r.host.mu.Unlock()
		r.host.logger.InfoContext(ctx, "payer sees new total",
			slog.String("total", d.Total.Amount.Value),
			slog.String("currency", d.Total.Amount.Currency),
		)
		return d, nil
	case <-t.C:
		return r.details, fmt.Errorf("sim: details update never resolved")
	case <-r.aborted:
		return r.details, ErrAborted
	case <-ctx.Done():
		return r.details, ctx.Err()
	}
}

func (r *request) instrument() domain.Instrument {
	cfg := r.host.cfg
	details, _ := json.Marshal(map[string]string{
		"txnId":  uuid.NewString(),
		"Status": "SUCCESS",
	})
	inst := domain.Instrument{
		MethodName: r.method,
		Details:    details,
	}
	if r.opts.RequestShipping {
		addr := cfg.Address
		inst.ShippingAddress = &addr
		for _, o := range r.details.ShippingOptions {
			if o.Selected {
				inst.ShippingOption = o.ID
			}
		}
	}
	if r.opts.RequestPayerName {
		inst.PayerName = cfg.PayerName
	}
	if r.opts.RequestPayerPhone {
		inst.PayerPhone = cfg.PayerPhone
	}
	if r.opts.RequestPayerEmail {
		inst.PayerEmail = cfg.PayerEmail
	}
	return inst
}

func (r *request) Abort(context.Context) error {
	if r.host.cfg.AbortFails {
		return errors.New("sim: payer is completing the payment")
	}
	r.abortOnce.Do(func() { close(r.aborted) })
	return nil
}

type probingRequest struct {
	*request
}

func (r *probingRequest) CanMakePayment(context.Context) (bool, error) {
	return r.host.cfg.Capability != CapabilityNo, nil
}

type response struct {
	host *Host
	inst domain.Instrument
}

func (p *response) Instrument() domain.Instrument { return p.inst }

func (p *response) Complete(_ context.Context, result domain.CompletionResult) error {
	p.host.mu.Lock()
	p.host.results = append(p.host.results, result)
	p.host.mu.Unlock()
	_, err := fmt.Fprintf(p.host.out, "payment sheet closed: %s\n", result)
	return err
}

var (
	_ domain.Host             = (*Host)(nil)
	_ domain.PaymentRequest   = (*request)(nil)
	_ domain.CapabilityProber = (*probingRequest)(nil)
	_ domain.PaymentResponse  = (*response)(nil)
)
