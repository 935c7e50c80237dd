package domain

import (
	"context"
	"time"
)

// SessionStore is string-keyed storage scoped to one browsing session.
// Entries are written once and live until the session ends.
type SessionStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetOnce stores value under key unless the key already exists. It
	// reports whether this call wrote the value.
	SetOnce(ctx context.Context, key string, value []byte) (bool, error)
}

// ShippingQuoter asks the merchant for shipping options for an address.
type ShippingQuoter interface {
	QuoteShipping(ctx context.Context, addr Address) ([]ShippingOption, error)
}

// Purchaser submits an authorized instrument to the merchant.
type Purchaser interface {
	Buy(ctx context.Context, inst Instrument) (PurchaseResult, error)
}

// LockManager hands out expiring exclusive locks.
type LockManager interface {
	// Acquire takes the lock for key, returning ErrLockHeld when another
	// holder has it. The returned unlock func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter counts requests per key in a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
