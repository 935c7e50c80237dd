package negotiator

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/webpay/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResponse struct {
	inst        domain.Instrument
	completeErr error

	mu        sync.Mutex
	completed []domain.CompletionResult
}

func (r *fakeResponse) Instrument() domain.Instrument { return r.inst }

func (r *fakeResponse) Complete(_ context.Context, result domain.CompletionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, result)
	return r.completeErr
}

func (r *fakeResponse) results() []domain.CompletionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CompletionResult(nil), r.completed...)
}

// fakeRequest is a request whose host cannot be probed.
type fakeRequest struct {
	show     func(ctx context.Context, r *fakeRequest) (domain.PaymentResponse, error)
	abortErr error

	mu       sync.Mutex
	handler  domain.EventHandler
	aborts   int
	abortOne sync.Once
	aborted  chan struct{}

	methods []domain.PaymentMethodData
	details domain.PaymentDetails
	opts    domain.PaymentOptions
}

func newFakeRequest(resp domain.PaymentResponse) *fakeRequest {
	return &fakeRequest{
		aborted: make(chan struct{}),
		show: func(context.Context, *fakeRequest) (domain.PaymentResponse, error) {
			return resp, nil
		},
	}
}

func (r *fakeRequest) Subscribe(h domain.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *fakeRequest) Show(ctx context.Context) (domain.PaymentResponse, error) {
	return r.show(ctx, r)
}

func (r *fakeRequest) Abort(context.Context) error {
	r.mu.Lock()
	r.aborts++
	r.mu.Unlock()
	r.abortOne.Do(func() { close(r.aborted) })
	return r.abortErr
}

func (r *fakeRequest) abortCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborts
}

func (r *fakeRequest) eventHandler() domain.EventHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

// probingRequest adds a capability check to fakeRequest.
type probingRequest struct {
	*fakeRequest

	mu       sync.Mutex
	canPay   bool
	probeErr error
	probes   int
}

func (r *probingRequest) CanMakePayment(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes++
	return r.canPay, r.probeErr
}

func (r *probingRequest) probeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes
}

type fakeHost struct {
	session     string
	unsupported bool
	req         domain.PaymentRequest
	accept      bool

	mu        sync.Mutex
	redirects []string
	displayed []string
}

func (h *fakeHost) SessionID() string { return h.session }

func (h *fakeHost) Supported(context.Context) bool { return !h.unsupported }

func (h *fakeHost) NewRequest(_ context.Context, methods []domain.PaymentMethodData, details domain.PaymentDetails, opts domain.PaymentOptions) (domain.PaymentRequest, error) {
	var base *fakeRequest
	switch r := h.req.(type) {
	case *fakeRequest:
		base = r
	case *probingRequest:
		base = r.fakeRequest
	}
	if base != nil {
		base.methods, base.details, base.opts = methods, details, opts
	}
	return h.req, nil
}

func (h *fakeHost) ConfirmRedirect(_ context.Context, _ string, url string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redirects = append(h.redirects, url)
	return h.accept, nil
}

func (h *fakeHost) DisplayResult(_ context.Context, pretty string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.displayed = append(h.displayed, pretty)
	return nil
}

type fakeQuoter struct {
	mu      sync.Mutex
	options []domain.ShippingOption
	err     error
	calls   int
}

func (q *fakeQuoter) QuoteShipping(context.Context, domain.Address) ([]domain.ShippingOption, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.options, q.err
}

type fakePurchaser struct {
	result domain.PurchaseResult
	err    error

	mu    sync.Mutex
	calls []domain.Instrument
}

func (p *fakePurchaser) Buy(_ context.Context, inst domain.Instrument) (domain.PurchaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, inst)
	return p.result, p.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
