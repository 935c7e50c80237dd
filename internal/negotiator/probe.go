package negotiator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// DefaultCacheKey names the session slot holding the capability result.
const DefaultCacheKey = "canMakePaymentCache"

// Prober answers whether the payer's device can complete a payment,
// remembering the answer for the rest of the session. Concurrent probes for
// the same session share one host call.
type Prober struct {
	store         domain.SessionStore
	key           string
	assumeCapable bool
	group         singleflight.Group
	logger        *slog.Logger
}

// NewProber creates a Prober. assumeCapable is the answer used when the host
// offers no way to probe.
func NewProber(store domain.SessionStore, key string, assumeCapable bool, logger *slog.Logger) *Prober {
	if key == "" {
		key = DefaultCacheKey
	}
	return &Prober{
		store:         store,
		key:           key,
		assumeCapable: assumeCapable,
		logger:        logger.With(slog.String("component", "prober")),
	}
}

func (p *Prober) sessionKey(sessionID string) string {
	if sessionID == "" {
		return p.key
	}
	return sessionID + ":" + p.key
}

// Probe returns the cached result for the session, or asks req and caches
// the answer. A failing host check returns domain.ErrCapabilityCheck and
// leaves the cache untouched.
func (p *Prober) Probe(ctx context.Context, sessionID string, req domain.PaymentRequest) (bool, error) {
	key := p.sessionKey(sessionID)

	if v, ok := p.cached(ctx, key); ok {
		return v, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		result := p.assumeCapable
		if prober, ok := req.(domain.CapabilityProber); ok {
			r, err := prober.CanMakePayment(ctx)
			if err != nil {
				return false, fmt.Errorf("negotiator: can make payment: %w: %v", domain.ErrCapabilityCheck, err)
			}
			result = r
		}
		return p.remember(ctx, key, result), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (p *Prober) cached(ctx context.Context, key string) (bool, bool) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.WarnContext(ctx, "capability cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, false
	}
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		p.logger.WarnContext(ctx, "capability cache holds garbage",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, false
	}
	return v, true
}

// remember writes result into the session slot. When another writer got
// there first, the stored value wins so every reader sees the same answer.
func (p *Prober) remember(ctx context.Context, key string, result bool) bool {
	raw, _ := json.Marshal(result)
	wrote, err := p.store.SetOnce(ctx, key, raw)
	if err != nil {
		p.logger.WarnContext(ctx, "capability cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return result
	}
	if !wrote {
		if v, ok := p.cached(ctx, key); ok {
			return v
		}
	}
	return result
}
