package bridge

import (
	"encoding/json"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// Message types sent to the browser.
const (
	typeWelcome         = "welcome"
	typeCreate          = "create"
	typeCanMakePayment  = "canMakePayment"
	typeShow            = "show"
	typeAbort           = "abort"
	typeComplete        = "complete"
	typeUpdateWith      = "updateWith"
	typeConfirmRedirect = "confirmRedirect"
	typeDisplayResult   = "displayResult"
)

// Message types sent by the browser.
const (
	typeHello = "hello"
	typeReply = "reply"
	typeEvent = "event"
)

// Event names, as fired on the browser's PaymentRequest.
const (
	eventShippingAddressChange = "shippingaddresschange"
	eventShippingOptionChange  = "shippingoptionchange"
)

// envelope is every frame on the wire. Replies echo the id of the call they
// answer.
type envelope struct {
	ID          string          `json:"id,omitempty"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OK          bool            `json:"ok,omitempty"`
	Error       string          `json:"error,omitempty"`
	Unsupported bool            `json:"unsupported,omitempty"`
}

type welcomePayload struct {
	Session string `json:"session"`
}

// helloPayload is the browser's feature detection.
type helloPayload struct {
	PaymentRequest bool `json:"paymentRequest"`
	CanMakePayment bool `json:"canMakePayment"`
}

type createPayload struct {
	RequestID string                     `json:"requestId"`
	Methods   []domain.PaymentMethodData `json:"methods"`
	Details   domain.PaymentDetails      `json:"details"`
	Options   domain.PaymentOptions      `json:"options"`
}

type requestPayload struct {
	RequestID string `json:"requestId"`
}

type canMakePaymentResult struct {
	Result bool `json:"result"`
}

type completePayload struct {
	RequestID string                  `json:"requestId"`
	Result    domain.CompletionResult `json:"result"`
}

type updateWithPayload struct {
	RequestID string                `json:"requestId"`
	EventID   string                `json:"eventId"`
	Details   domain.PaymentDetails `json:"details"`
}

type eventPayload struct {
	RequestID      string          `json:"requestId"`
	EventID        string          `json:"eventId"`
	Name           string          `json:"name"`
	Address        *domain.Address `json:"shippingAddress,omitempty"`
	ShippingOption string          `json:"shippingOption,omitempty"`
}

type confirmPayload struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

type confirmResult struct {
	Accepted bool `json:"accepted"`
}

type displayPayload struct {
	Text string `json:"text"`
}
