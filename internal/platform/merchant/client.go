// Package merchant is the REST client for the merchant backend that quotes
// shipping and authorizes instruments. Requests carry the session cookies the
// merchant sets, mirroring a browser fetch with credentials included.
package merchant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/alanyoungcy/webpay/internal/domain"
)

const (
	defaultTimeout    = 15 * time.Second
	idempotencyHeader = "Idempotency-Key"
	statusSuccess     = "success"
)

// Config holds the merchant endpoints.
type Config struct {
	BaseURL  string
	ShipPath string
	BuyPath  string
	Timeout  time.Duration
}

// Client posts shipping addresses and instruments to the merchant.
type Client struct {
	shipURL    string
	buyURL     string
	httpClient *http.Client
}

// NewClient creates a merchant client with its own cookie jar.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("merchant: base url is empty")
	}
	shipURL, err := url.JoinPath(base, defaultPath(cfg.ShipPath, "ship"))
	if err != nil {
		return nil, fmt.Errorf("merchant: ship url: %w", err)
	}
	buyURL, err := url.JoinPath(base, defaultPath(cfg.BuyPath, "buy"))
	if err != nil {
		return nil, fmt.Errorf("merchant: buy url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("merchant: cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		shipURL: shipURL,
		buyURL:  buyURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// shipResponse is the merchant's answer to a shipping quote.
type shipResponse struct {
	Status          string                  `json:"status"`
	ShippingOptions []domain.ShippingOption `json:"shippingOptions"`
}

// QuoteShipping posts the address to the shipping endpoint and returns the
// options it offers. A transport failure, a non-2xx status or a status other
// than "success" all yield domain.ErrShippingQuoteUnavailable.
func (c *Client) QuoteShipping(ctx context.Context, addr domain.Address) ([]domain.ShippingOption, error) {
	body, err := json.MarshalIndent(addr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("merchant: marshal address: %w", err)
	}

	respBody, err := c.doPost(ctx, c.shipURL, body, "")
	if err != nil {
		return nil, fmt.Errorf("merchant: quote shipping: %w: %v", domain.ErrShippingQuoteUnavailable, err)
	}

	var out shipResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("merchant: decode shipping quote: %w: %v", domain.ErrShippingQuoteUnavailable, err)
	}
	if out.Status != statusSuccess {
		return nil, fmt.Errorf("merchant: quote shipping: %w: status %q", domain.ErrShippingQuoteUnavailable, out.Status)
	}
	return out.ShippingOptions, nil
}

// Buy submits the instrument to the purchase endpoint.
func (c *Client) Buy(ctx context.Context, inst domain.Instrument) (domain.PurchaseResult, error) {
	body, err := MarshalInstrument(inst)
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("merchant: marshal instrument: %w", err)
	}

	respBody, err := c.doPost(ctx, c.buyURL, body, uuid.NewString())
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("merchant: buy: %w: %v", domain.ErrPurchaseFailed, err)
	}

	var out domain.PurchaseResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("merchant: decode buy result: %w: %v", domain.ErrPurchaseFailed, err)
	}
	return out, nil
}

// doPost sends a JSON body and returns the response body of a 2xx answer.
func (c *Client) doPost(ctx context.Context, endpoint string, body []byte, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, drainError(respBody))
	}
	return respBody, nil
}

func defaultPath(p, fallback string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return fallback
	}
	return p
}

func drainError(b []byte) string {
	if len(b) > 256 {
		b = b[:256]
	}
	return strings.TrimSpace(string(b))
}

var (
	_ domain.ShippingQuoter = (*Client)(nil)
	_ domain.Purchaser      = (*Client)(nil)
)
