package domain

import "encoding/json"

// Amount is a monetary value as carried on the payment request wire: the
// value is a decimal string such as "125.50".
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// LineItem is one row shown to the payer.
type LineItem struct {
	Label  string `json:"label"`
	Amount Amount `json:"amount"`
}

// ShippingOption is one selectable shipping choice. At most one option in a
// descriptor is selected.
type ShippingOption struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Amount   Amount `json:"amount"`
	Selected bool   `json:"selected"`
}

// LineItem returns the display row for this option.
func (o ShippingOption) LineItem() LineItem {
	return LineItem{Label: o.Label, Amount: o.Amount}
}

// PaymentDetails describes what is being purchased: the total, the rows shown
// to the payer and the shipping choices.
type PaymentDetails struct {
	Total           LineItem         `json:"total"`
	DisplayItems    []LineItem       `json:"displayItems"`
	ShippingOptions []ShippingOption `json:"shippingOptions,omitempty"`
}

// Clone returns a deep copy so a snapshot can be handed to the host while the
// negotiation keeps mutating its own copy.
func (d PaymentDetails) Clone() PaymentDetails {
	out := d
	if d.DisplayItems != nil {
		out.DisplayItems = append([]LineItem(nil), d.DisplayItems...)
	}
	if d.ShippingOptions != nil {
		out.ShippingOptions = append([]ShippingOption(nil), d.ShippingOptions...)
	}
	return out
}

// PaymentMethodData names the payment handlers that may serve the request and
// the data each of them receives.
type PaymentMethodData struct {
	SupportedMethods []string `json:"supportedMethods"`
	Data             any      `json:"data"`
}

// ShippingType tells the host how to label the shipping address.
type ShippingType string

const (
	ShippingTypeShipping ShippingType = "shipping"
	ShippingTypeDelivery ShippingType = "delivery"
	ShippingTypePickup   ShippingType = "pickup"
)

// PaymentOptions is the options bag of a payment request.
type PaymentOptions struct {
	RequestShipping   bool         `json:"requestShipping"`
	RequestPayerName  bool         `json:"requestPayerName"`
	RequestPayerPhone bool         `json:"requestPayerPhone"`
	RequestPayerEmail bool         `json:"requestPayerEmail"`
	ShippingType      ShippingType `json:"shippingType"`
}

// Address is a payer-supplied shipping address.
type Address struct {
	Recipient         string   `json:"recipient"`
	Organization      string   `json:"organization"`
	AddressLine       []string `json:"addressLine"`
	DependentLocality string   `json:"dependentLocality"`
	City              string   `json:"city"`
	Region            string   `json:"region"`
	PostalCode        string   `json:"postalCode"`
	SortingCode       string   `json:"sortingCode"`
	Country           string   `json:"country"`
	Phone             string   `json:"phone"`
}

// Instrument is the authorized payment result returned by the host.
type Instrument struct {
	MethodName      string          `json:"methodName"`
	Details         json.RawMessage `json:"details,omitempty"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	ShippingOption  string          `json:"shippingOption,omitempty"`
	PayerName       string          `json:"payerName,omitempty"`
	PayerPhone      string          `json:"payerPhone,omitempty"`
	PayerEmail      string          `json:"payerEmail,omitempty"`
}

// CompletionResult is reported to the host once the merchant has processed
// the instrument.
type CompletionResult string

const (
	CompletionSuccess CompletionResult = "success"
	CompletionFail    CompletionResult = "fail"
)

// CompletionFromStatus maps a merchant status to a completion result. Anything
// other than "success" is a failure.
func CompletionFromStatus(status string) CompletionResult {
	if status == string(CompletionSuccess) {
		return CompletionSuccess
	}
	return CompletionFail
}

// InstrumentForm holds the demo's input form. Every field except Amount is
// forwarded verbatim as the data of each supported payment method.
type InstrumentForm struct {
	PayeeAddress  string `json:"pa"`
	PayeeName     string `json:"pn"`
	Note          string `json:"tn"`
	MerchantCode  string `json:"mc"`
	Reference     string `json:"tr"`
	TransactionID string `json:"tid"`
	URL           string `json:"url"`
	Amount        string `json:"-"`
}

// PurchaseResult is the merchant's answer to an instrument submission.
type PurchaseResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
