package domain

import "context"

// Host is the environment on the payer's device that can run payment
// requests: a browser reached over the bridge, or the simulator.
type Host interface {
	// SessionID identifies the payer's browsing session. Session-scoped
	// state is keyed by it.
	SessionID() string
	// Supported reports whether the host exposes a payment request
	// capability at all.
	Supported(ctx context.Context) bool
	// NewRequest constructs a payment request. It does not show any UI.
	NewRequest(ctx context.Context, methods []PaymentMethodData, details PaymentDetails, opts PaymentOptions) (PaymentRequest, error)
	// ConfirmRedirect asks the payer whether to leave for url and navigates
	// there when they accept.
	ConfirmRedirect(ctx context.Context, prompt, url string) (bool, error)
	// DisplayResult shows the final response to the payer.
	DisplayResult(ctx context.Context, pretty string) error
}

// PaymentRequest is one host-side payment request.
type PaymentRequest interface {
	// Subscribe registers the handler for shipping events. It must be called
	// before Show.
	Subscribe(h EventHandler)
	Show(ctx context.Context) (PaymentResponse, error)
	Abort(ctx context.Context) error
}

// CapabilityProber is implemented by requests whose host can tell in advance
// whether the payment can be made. Hosts without it are assumed capable.
type CapabilityProber interface {
	CanMakePayment(ctx context.Context) (bool, error)
}

// PaymentResponse is the host's answer to Show.
type PaymentResponse interface {
	Instrument() Instrument
	Complete(ctx context.Context, result CompletionResult) error
}

// EventHandler receives the negotiation events fired by the host.
type EventHandler interface {
	OnShippingAddressChanged(ev *ShippingAddressChangeEvent)
	OnShippingOptionChanged(ev *ShippingOptionChangeEvent)
}

// DetailsFuture is resolved exactly once with the updated details.
type DetailsFuture <-chan PaymentDetails

// Updater hands a pending details update back to the host.
type Updater interface {
	UpdateWith(f DetailsFuture)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(f DetailsFuture)

// UpdateWith calls fn(f).
func (fn UpdaterFunc) UpdateWith(f DetailsFuture) { fn(f) }

// ShippingAddressChangeEvent is fired when the payer picks or edits the
// shipping address.
type ShippingAddressChangeEvent struct {
	Address Address
	Updater
}

// ShippingOptionChangeEvent is fired when the payer picks a shipping option.
type ShippingOptionChangeEvent struct {
	OptionID string
	Updater
}
