package negotiator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/cache/memory"
	"github.com/alanyoungcy/webpay/internal/domain"
)

func testConfig() Config {
	return Config{
		Methods:                   []string{"https://tez.google.com/pay"},
		Currency:                  "INR",
		TotalLabel:                "Total",
		Options:                   domain.PaymentOptions{RequestShipping: true},
		Timeout:                   time.Minute,
		AssumeCapableWithoutProbe: true,
		InstallURL:                "https://example.com/install",
		InstallPrompt:             "Install the app?",
	}
}

func testForm() domain.InstrumentForm {
	return domain.InstrumentForm{
		PayeeAddress: "merchant@bank",
		PayeeName:    "Demo Merchant",
		Note:         "demo",
		Amount:       "100.00",
	}
}

func quotedOptions() []domain.ShippingOption {
	return []domain.ShippingOption{
		{ID: "A", Label: "Standard", Amount: domain.Amount{Currency: "INR", Value: "10.00"}},
		{ID: "B", Label: "Express", Amount: domain.Amount{Currency: "INR", Value: "25.50"}, Selected: true},
	}
}

// await registers a future through an Updater and waits for its value.
type await struct {
	ch chan domain.DetailsFuture
}

func newAwait() *await { return &await{ch: make(chan domain.DetailsFuture, 1)} }

func (a *await) UpdateWith(f domain.DetailsFuture) { a.ch <- f }

func (a *await) get(t *testing.T) domain.PaymentDetails {
	t.Helper()
	select {
	case f := <-a.ch:
		select {
		case d := <-f:
			return d
		case <-time.After(2 * time.Second):
			t.Fatal("future was never resolved")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("UpdateWith was never called")
	}
	return domain.PaymentDetails{}
}

func startNegotiation(t *testing.T, quoter *fakeQuoter) (*Negotiation, *fakeRequest) {
	t.Helper()
	req := newFakeRequest(&fakeResponse{})
	host := &fakeHost{session: "s", req: req}
	n := New(testConfig(), memory.NewSessionStore(), quoter, &fakePurchaser{}, nil, discardLogger())

	g, err := n.Start(context.Background(), host, testForm())
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g, req
}

func TestStart_BuildsRequestFromForm(t *testing.T) {
	_, req := startNegotiation(t, &fakeQuoter{})

	require.Len(t, req.methods, 1)
	assert.Equal(t, []string{"https://tez.google.com/pay"}, req.methods[0].SupportedMethods)
	assert.Equal(t, "merchant@bank", req.methods[0].Data.(domain.InstrumentForm).PayeeAddress)

	assert.Equal(t, "Total", req.details.Total.Label)
	assert.Equal(t, domain.Amount{Currency: "INR", Value: "100.00"}, req.details.Total.Amount)
	require.Len(t, req.details.DisplayItems, 1)
	assert.Equal(t, "Original amount", req.details.DisplayItems[0].Label)
	assert.Empty(t, req.details.ShippingOptions)
	assert.True(t, req.opts.RequestShipping)
	assert.NotNil(t, req.eventHandler(), "negotiation subscribes before show")
}

func TestBuild_RejectsBadAmount(t *testing.T) {
	n := New(testConfig(), memory.NewSessionStore(), &fakeQuoter{}, &fakePurchaser{}, nil, discardLogger())

	for _, amount := range []string{"", "ten", "-1"} {
		form := testForm()
		form.Amount = amount
		_, _, err := n.Build(form)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %q", amount)
	}
}

func TestAddressChange_RecalculatesFromQuote(t *testing.T) {
	g, req := startNegotiation(t, &fakeQuoter{options: quotedOptions()})

	a := newAwait()
	req.eventHandler().OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{
		Address: domain.Address{City: "Bengaluru", Country: "IN"},
		Updater: a,
	})
	d := a.get(t)

	assert.Equal(t, "125.50", d.Total.Amount.Value)
	assert.Equal(t, "Total", d.Total.Label)
	require.Len(t, d.DisplayItems, 2)
	assert.Equal(t, "100.00", d.DisplayItems[0].Amount.Value)
	assert.Equal(t, "Express", d.DisplayItems[1].Label)
	assert.Len(t, d.ShippingOptions, 2)

	assert.Equal(t, d, g.Details())
}

func TestAddressChange_QuoteFailureStillAnswers(t *testing.T) {
	_, req := startNegotiation(t, &fakeQuoter{err: domain.ErrShippingQuoteUnavailable})

	a := newAwait()
	req.eventHandler().OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Updater: a})
	d := a.get(t)

	assert.Equal(t, "100.00", d.Total.Amount.Value)
	assert.Len(t, d.DisplayItems, 1)
	assert.Empty(t, d.ShippingOptions)
}

func TestAddressChange_QuoteFailureKeepsPreviousOptions(t *testing.T) {
	quoter := &fakeQuoter{options: quotedOptions()}
	_, req := startNegotiation(t, quoter)
	h := req.eventHandler()

	first := newAwait()
	h.OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Updater: first})
	first.get(t)

	quoter.mu.Lock()
	quoter.options, quoter.err = nil, errors.New("connection refused")
	quoter.mu.Unlock()

	second := newAwait()
	h.OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Updater: second})
	d := second.get(t)

	assert.Equal(t, "125.50", d.Total.Amount.Value)
	assert.Len(t, d.ShippingOptions, 2)
}

func TestAddressChange_UnpriceableQuoteFallsBackToNoShipping(t *testing.T) {
	_, req := startNegotiation(t, &fakeQuoter{options: []domain.ShippingOption{
		{ID: "X", Label: "Broken", Amount: domain.Amount{Currency: "INR", Value: "n/a"}, Selected: true},
	}})

	a := newAwait()
	req.eventHandler().OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Updater: a})
	d := a.get(t)

	assert.Equal(t, "100.00", d.Total.Amount.Value)
	assert.Empty(t, d.ShippingOptions)
}

func TestOptionChange_SelectsAndRecalculates(t *testing.T) {
	_, req := startNegotiation(t, &fakeQuoter{options: quotedOptions()})
	h := req.eventHandler()

	addr := newAwait()
	h.OnShippingAddressChanged(&domain.ShippingAddressChangeEvent{Updater: addr})

	opt := newAwait()
	h.OnShippingOptionChanged(&domain.ShippingOptionChangeEvent{OptionID: "A", Updater: opt})

	addr.get(t)
	d := opt.get(t)

	assert.Equal(t, "110.00", d.Total.Amount.Value)
	assert.True(t, d.ShippingOptions[0].Selected)
	assert.False(t, d.ShippingOptions[1].Selected)
	assert.Equal(t, "Standard", d.DisplayItems[1].Label)
}

func TestEventsAfterCloseAreStillAnswered(t *testing.T) {
	g, req := startNegotiation(t, &fakeQuoter{options: quotedOptions()})
	g.Close()

	a := newAwait()
	req.eventHandler().OnShippingOptionChanged(&domain.ShippingOptionChangeEvent{OptionID: "A", Updater: a})
	d := a.get(t)

	assert.Equal(t, "100.00", d.Total.Amount.Value)
}
