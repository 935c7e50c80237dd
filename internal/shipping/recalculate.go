// Package shipping recomputes payment totals when the shipping selection
// changes. Everything here is pure: the same inputs always produce the same
// Update, and no input is modified.
package shipping

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// OriginalAmountLabel labels the first display row.
const OriginalAmountLabel = "Original amount"

// Update is the part of a descriptor that changes after a shipping event.
type Update struct {
	ShippingOptions []domain.ShippingOption
	Total           domain.Amount
	DisplayItems    []domain.LineItem
}

// Recalculate derives the total and display rows from the base amount and the
// option list. When more than one option is marked selected, the last one
// wins. The total is rounded half-up to two decimal places.
func Recalculate(base decimal.Decimal, currency string, options []domain.ShippingOption) (Update, error) {
	var selected *domain.ShippingOption
	for i := range options {
		if options[i].Selected {
			selected = &options[i]
		}
	}

	total := base
	if selected != nil {
		price, err := ParseAmount(selected.Amount.Value)
		if err != nil {
			return Update{}, fmt.Errorf("shipping: option %q: %w", selected.ID, err)
		}
		total = total.Add(price)
	}

	items := make([]domain.LineItem, 1, 2)
	items[0] = domain.LineItem{
		Label:  OriginalAmountLabel,
		Amount: domain.Amount{Currency: currency, Value: FormatAmount(base)},
	}
	if selected != nil {
		items = append(items, selected.LineItem())
	}

	return Update{
		ShippingOptions: append([]domain.ShippingOption(nil), options...),
		Total:           domain.Amount{Currency: currency, Value: FormatAmount(total)},
		DisplayItems:    items,
	}, nil
}

// SelectOption returns a copy of options where exactly the option with the
// given id is selected. An unknown id leaves nothing selected.
func SelectOption(options []domain.ShippingOption, id string) []domain.ShippingOption {
	out := make([]domain.ShippingOption, len(options))
	for i, o := range options {
		o.Selected = o.ID == id
		out[i] = o
	}
	return out
}

// Apply writes u into details. The total label is kept.
func Apply(details *domain.PaymentDetails, u Update) {
	details.ShippingOptions = u.ShippingOptions
	details.Total.Amount = u.Total
	details.DisplayItems = u.DisplayItems
}

// ParseAmount parses a wire amount value.
func ParseAmount(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, v)
	}
	return d, nil
}

// FormatAmount renders d with exactly two decimals, rounding half away from
// zero (half-up for the non-negative amounts used here).
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
