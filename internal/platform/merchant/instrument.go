package merchant

import (
	"encoding/json"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// instrumentPayload is the purchase body. The shipping address travels as an
// indented JSON string rather than a nested object; merchant backends built
// for the browser demo decode it in a second step.
type instrumentPayload struct {
	MethodName      string          `json:"methodName"`
	Details         json.RawMessage `json:"details"`
	ShippingAddress string          `json:"shippingAddress"`
	ShippingOption  string          `json:"shippingOption"`
	PayerName       string          `json:"payerName"`
	PayerPhone      string          `json:"payerPhone"`
	PayerEmail      string          `json:"payerEmail"`
}

// MarshalInstrument renders inst the way it is posted to the purchase
// endpoint and shown to the payer afterwards.
func MarshalInstrument(inst domain.Instrument) ([]byte, error) {
	p := instrumentPayload{
		MethodName:     inst.MethodName,
		Details:        inst.Details,
		ShippingOption: inst.ShippingOption,
		PayerName:      inst.PayerName,
		PayerPhone:     inst.PayerPhone,
		PayerEmail:     inst.PayerEmail,
	}
	if len(p.Details) == 0 {
		p.Details = json.RawMessage("null")
	}
	if inst.ShippingAddress != nil {
		addr, err := json.MarshalIndent(inst.ShippingAddress, "", "  ")
		if err != nil {
			return nil, err
		}
		p.ShippingAddress = string(addr)
	}
	return json.MarshalIndent(p, "", "  ")
}
