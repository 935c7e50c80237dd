package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/cache/memory"
	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/alanyoungcy/webpay/internal/negotiator"
	"github.com/alanyoungcy/webpay/internal/platform/merchant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// merchantServer quotes two options and accepts every purchase.
func merchantServer(t *testing.T, bought chan<- map[string]any) *merchant.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ship", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","shippingOptions":[
			{"id":"std","label":"Standard","amount":{"currency":"INR","value":"10.00"},"selected":true},
			{"id":"exp","label":"Express","amount":{"currency":"INR","value":"25.50"}}]}`)
	})
	mux.HandleFunc("POST /buy", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bought <- body
		_, _ = io.WriteString(w, `{"status":"success","message":"order placed"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := merchant.NewClient(merchant.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func negotiatorConfig() negotiator.Config {
	return negotiator.Config{
		Methods:                   []string{"https://tez.google.com/pay"},
		Currency:                  "INR",
		Options:                   domain.PaymentOptions{RequestShipping: true, RequestPayerName: true},
		Timeout:                   time.Minute,
		AssumeCapableWithoutProbe: true,
		InstallURL:                "https://example.com/install",
		InstallPrompt:             "Install the payment app?",
	}
}

func TestSimulatedPurchase(t *testing.T) {
	bought := make(chan map[string]any, 1)
	m := merchantServer(t, bought)
	n := negotiator.New(negotiatorConfig(), memory.NewSessionStore(), m, m, nil, discardLogger())

	var out bytes.Buffer
	host := New(Config{
		Address:   domain.Address{City: "Pune", Country: "IN"},
		OptionID:  "exp",
		PayerName: "A. Payer",
	}, &out, discardLogger())

	res, err := n.Run(context.Background(), host, domain.InstrumentForm{PayeeAddress: "m@bank", Amount: "100"})
	require.NoError(t, err)
	assert.Equal(t, negotiator.StateCompleted, res.State)

	updates := host.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, "110.00", updates[0].Total.Amount.Value)
	assert.Equal(t, "125.50", updates[1].Total.Amount.Value)

	body := <-bought
	assert.Equal(t, "exp", body["shippingOption"])
	assert.Equal(t, "A. Payer", body["payerName"])
	assert.Contains(t, body["shippingAddress"], `"city": "Pune"`)

	assert.Equal(t, []domain.CompletionResult{domain.CompletionSuccess}, host.Results())
	assert.Contains(t, out.String(), "payment sheet closed: success")
	assert.Contains(t, out.String(), `"methodName": "https://tez.google.com/pay"`)
}

func TestSimulatedDeviceWithoutApp(t *testing.T) {
	m := merchantServer(t, make(chan map[string]any, 1))
	n := negotiator.New(negotiatorConfig(), memory.NewSessionStore(), m, m, nil, discardLogger())

	var out bytes.Buffer
	host := New(Config{Capability: CapabilityNo, AcceptRedirect: true}, &out, discardLogger())

	res, err := n.Run(context.Background(), host, domain.InstrumentForm{Amount: "1"})
	require.ErrorIs(t, err, domain.ErrNotCapable)
	assert.Equal(t, negotiator.StateNotCapable, res.State)
	assert.Contains(t, out.String(), "Install the payment app? [https://example.com/install] yes")
}

func TestSimulatedSlowPayerTimesOut(t *testing.T) {
	m := merchantServer(t, make(chan map[string]any, 1))
	cfg := negotiatorConfig()
	cfg.Timeout = 20 * time.Millisecond
	n := negotiator.New(cfg, memory.NewSessionStore(), m, m, nil, discardLogger())

	host := New(Config{Capability: CapabilityUnprobed, ThinkTime: time.Second}, io.Discard, discardLogger())

	res, err := n.Run(context.Background(), host, domain.InstrumentForm{Amount: "1"})
	require.ErrorIs(t, err, domain.ErrNegotiationAborted)
	assert.Equal(t, negotiator.StateAborted, res.State)
}

func TestSimulatedAbortFailureStillPays(t *testing.T) {
	bought := make(chan map[string]any, 1)
	m := merchantServer(t, bought)
	cfg := negotiatorConfig()
	cfg.Timeout = 10 * time.Millisecond
	n := negotiator.New(cfg, memory.NewSessionStore(), m, m, nil, discardLogger())

	host := New(Config{ThinkTime: 50 * time.Millisecond, AbortFails: true}, io.Discard, discardLogger())

	res, err := n.Run(context.Background(), host, domain.InstrumentForm{Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, negotiator.StateCompleted, res.State)
	<-bought
}
