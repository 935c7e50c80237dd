// Package negotiator drives payment requests on the payer's device: it builds
// the request from the demo form, probes whether the device can pay, keeps
// the shipping total in step with the payer's choices, and relays the
// authorized instrument to the merchant.
package negotiator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/platform/merchant"
	"github.com/alanyoungcy/webpay/internal/shipping"
)

// DefaultTimeout is how long the payment UI may stay open before the request
// is aborted.
const DefaultTimeout = 20 * time.Minute

// Config describes the request every negotiation builds.
type Config struct {
	Methods    []string
	Currency   string
	TotalLabel string
	Options    domain.PaymentOptions
	Timeout    time.Duration

	// AssumeCapableWithoutProbe is the capability answer for hosts that
	// cannot be probed.
	AssumeCapableWithoutProbe bool
	CacheKey                  string

	InstallURL    string
	InstallPrompt string
}

// Notifier receives negotiation outcomes.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Outcome events passed to the Notifier.
const (
	EventPaymentCompleted   = "payment_completed"
	EventPaymentFailed      = "payment_failed"
	EventNegotiationAborted = "negotiation_aborted"
	EventNotCapable         = "not_capable"
)

// Negotiator runs negotiations. One Negotiator serves any number of
// sequential or concurrent negotiations; the capability cache is shared.
type Negotiator struct {
	cfg       Config
	prober    *Prober
	quoter    domain.ShippingQuoter
	purchaser domain.Purchaser
	notifier  Notifier
	logger    *slog.Logger
}

// New creates a Negotiator. notifier may be nil.
func New(cfg Config, store domain.SessionStore, quoter domain.ShippingQuoter, purchaser domain.Purchaser, notifier Notifier, logger *slog.Logger) *Negotiator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TotalLabel == "" {
		cfg.TotalLabel = "Total"
	}
	logger = logger.With(slog.String("component", "negotiator"))
	return &Negotiator{
		cfg:       cfg,
		prober:    NewProber(store, cfg.CacheKey, cfg.AssumeCapableWithoutProbe, logger),
		quoter:    quoter,
		purchaser: purchaser,
		notifier:  notifier,
		logger:    logger,
	}
}

// Build turns the form into the request arguments. The form amount is the
// base amount every shipping recalculation starts from.
func (n *Negotiator) Build(form domain.InstrumentForm) ([]domain.PaymentMethodData, domain.PaymentDetails, error) {
	methods, details, _, err := n.build(form)
	return methods, details, err
}

func (n *Negotiator) build(form domain.InstrumentForm) ([]domain.PaymentMethodData, domain.PaymentDetails, decimal.Decimal, error) {
	base, err := shipping.ParseAmount(strings.TrimSpace(form.Amount))
	if err != nil {
		return nil, domain.PaymentDetails{}, base, fmt.Errorf("negotiator: amount: %w", err)
	}
	if base.IsNegative() {
		return nil, domain.PaymentDetails{}, base, fmt.Errorf("negotiator: amount: %w: negative", domain.ErrInvalidAmount)
	}

	methods := make([]domain.PaymentMethodData, 0, len(n.cfg.Methods))
	for _, m := range n.cfg.Methods {
		methods = append(methods, domain.PaymentMethodData{
			SupportedMethods: []string{m},
			Data:             form,
		})
	}

	u, err := shipping.Recalculate(base, n.cfg.Currency, nil)
	if err != nil {
		return nil, domain.PaymentDetails{}, base, fmt.Errorf("negotiator: details: %w", err)
	}
	details := domain.PaymentDetails{
		Total: domain.LineItem{Label: n.cfg.TotalLabel},
	}
	shipping.Apply(&details, u)
	details.ShippingOptions = nil

	return methods, details, base, nil
}

// Start builds the request on host and subscribes a new negotiation to its
// events. The caller must Close the negotiation.
func (n *Negotiator) Start(ctx context.Context, host domain.Host, form domain.InstrumentForm) (*Negotiation, error) {
	if !host.Supported(ctx) {
		return nil, domain.ErrHostUnsupported
	}

	methods, details, base, err := n.build(form)
	if err != nil {
		return nil, err
	}

	req, err := host.NewRequest(ctx, methods, details, n.cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("negotiator: new request: %w", err)
	}

	return newNegotiation(ctx, n, uuid.NewString(), host.SessionID(), req, details, base), nil
}

// Complete tells the host that the merchant has processed the instrument.
// A host failure is logged and returned as domain.ErrCompletionFailed; it is
// not retried.
func (n *Negotiator) Complete(ctx context.Context, resp domain.PaymentResponse, result domain.CompletionResult, message string) error {
	if err := resp.Complete(ctx, result); err != nil {
		n.logger.ErrorContext(ctx, "unable to complete payment",
			slog.String("result", string(result)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("negotiator: complete: %w: %v", domain.ErrCompletionFailed, err)
	}
	n.logger.InfoContext(ctx, "payment completes",
		slog.String("result", string(result)),
		slog.String("message", message),
	)
	return nil
}

// State is where a negotiation ended.
type State string

const (
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateAborted     State = "aborted"
	StateNotCapable  State = "not_capable"
	StateUnsupported State = "unsupported"
	StateError       State = "error"
)

// Outcome summarizes one Run.
type Outcome struct {
	ID         string                 `json:"id"`
	State      State                  `json:"state"`
	Instrument *domain.Instrument     `json:"instrument,omitempty"`
	Purchase   *domain.PurchaseResult `json:"purchase,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Run performs a whole purchase attempt on host: build, probe, show, buy,
// complete and display. Every failure is logged where it happens; the
// returned error is the cause of a non-completed outcome.
func (n *Negotiator) Run(ctx context.Context, host domain.Host, form domain.InstrumentForm) (Outcome, error) {
	g, err := n.Start(ctx, host, form)
	if err != nil {
		state := StateError
		if errors.Is(err, domain.ErrHostUnsupported) {
			state = StateUnsupported
			n.logger.WarnContext(ctx, "web payments are not supported by this host",
				slog.String("session_id", host.SessionID()),
			)
		} else {
			n.logger.ErrorContext(ctx, "payment request error", slog.String("error", err.Error()))
		}
		return Outcome{State: state, Error: err.Error()}, err
	}
	defer g.Close()

	out := Outcome{ID: g.ID, State: StateRunning}
	logger := g.logger

	resp, err := g.Begin(ctx)
	if err != nil {
		out.Error = err.Error()
		switch {
		case errors.Is(err, domain.ErrNotCapable):
			out.State = StateNotCapable
			logger.InfoContext(ctx, "payment method not available, offering install")
			n.notify(ctx, EventNotCapable, "Payment app missing", "session "+g.SessionID)
			n.offerInstall(ctx, host, logger)
		case errors.Is(err, domain.ErrCapabilityCheck):
			out.State = StateError
			logger.ErrorContext(ctx, "error calling capability check", slog.String("error", err.Error()))
		case errors.Is(err, domain.ErrNegotiationAborted):
			out.State = StateAborted
			logger.InfoContext(ctx, "negotiation aborted", slog.String("error", err.Error()))
			n.notify(ctx, EventNegotiationAborted, "Payment aborted", "negotiation "+g.ID)
		default:
			out.State = StateError
			logger.ErrorContext(ctx, "payment request failed", slog.String("error", err.Error()))
		}
		return out, err
	}

	inst := resp.Instrument()
	out.Instrument = &inst
	return n.process(ctx, host, g, resp, out)
}

// process relays the instrument to the merchant and reports the result to
// the host. When the merchant cannot be reached the payment is completed as
// failed so the payer is not left waiting for the timeout.
func (n *Negotiator) process(ctx context.Context, host domain.Host, g *Negotiation, resp domain.PaymentResponse, out Outcome) (Outcome, error) {
	logger := g.logger
	inst := *out.Instrument

	pretty, err := merchant.MarshalInstrument(inst)
	if err != nil {
		logger.WarnContext(ctx, "unable to render instrument", slog.String("error", err.Error()))
	} else {
		logger.DebugContext(ctx, "instrument authorized", slog.String("instrument", string(pretty)))
	}

	result, buyErr := n.purchaser.Buy(ctx, inst)
	if buyErr != nil {
		logger.ErrorContext(ctx, "unable to process payment", slog.String("error", buyErr.Error()))
		result = domain.PurchaseResult{Status: string(domain.CompletionFail), Message: buyErr.Error()}
	}
	out.Purchase = &result

	completion := domain.CompletionFromStatus(result.Status)
	if err := n.Complete(ctx, resp, completion, result.Message); err != nil {
		out.State = StateError
		out.Error = err.Error()
		return out, err
	}

	if pretty != nil {
		if err := host.DisplayResult(ctx, string(pretty)); err != nil {
			logger.WarnContext(ctx, "unable to display result", slog.String("error", err.Error()))
		}
	}

	if completion == domain.CompletionSuccess {
		out.State = StateCompleted
		n.notify(ctx, EventPaymentCompleted, "Payment completed",
			fmt.Sprintf("%s via %s: %s", g.Details().Total.Amount.Value, inst.MethodName, result.Message))
		return out, nil
	}

	out.State = StateFailed
	err = buyErr
	if err == nil {
		err = fmt.Errorf("negotiator: merchant status %q: %w", result.Status, domain.ErrPurchaseFailed)
	}
	out.Error = err.Error()
	n.notify(ctx, EventPaymentFailed, "Payment failed", result.Message)
	return out, err
}

// offerInstall asks the payer to install the payment app.
func (n *Negotiator) offerInstall(ctx context.Context, host domain.Host, logger *slog.Logger) {
	if n.cfg.InstallURL == "" {
		return
	}
	accepted, err := host.ConfirmRedirect(ctx, n.cfg.InstallPrompt, n.cfg.InstallURL)
	if err != nil {
		logger.WarnContext(ctx, "unable to offer install", slog.String("error", err.Error()))
		return
	}
	logger.InfoContext(ctx, "install offer answered", slog.Bool("accepted", accepted))
}

func (n *Negotiator) notify(ctx context.Context, event, title, message string) {
	if n.notifier == nil {
		return
	}
	if err := n.notifier.Notify(ctx, event, title, message); err != nil {
		n.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
