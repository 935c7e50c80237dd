package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrCapabilityCheck          = errors.New("capability check failed")
	ErrNotCapable               = errors.New("payment method not available on this device")
	ErrNegotiationAborted       = errors.New("negotiation aborted")
	ErrAbortFailed              = errors.New("abort failed")
	ErrShippingQuoteUnavailable = errors.New("shipping quote unavailable")
	ErrCompletionFailed         = errors.New("completion failed")
	ErrHostUnsupported          = errors.New("payment request not supported by host")
	ErrHostDisconnected         = errors.New("host disconnected")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrPurchaseFailed           = errors.New("purchase failed")
	ErrLockHeld                 = errors.New("lock held")
	ErrSessionBusy              = errors.New("a payment is already in progress for this session")
)
