package shipping

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/domain"
)

func option(id, value string, selected bool) domain.ShippingOption {
	return domain.ShippingOption{
		ID:       id,
		Label:    "Option " + id,
		Amount:   domain.Amount{Currency: "INR", Value: value},
		Selected: selected,
	}
}

func TestRecalculate_SelectedOptionAddsToTotal(t *testing.T) {
	options := []domain.ShippingOption{
		option("A", "10.00", false),
		option("B", "25.50", true),
	}

	u, err := Recalculate(decimal.RequireFromString("100.00"), "INR", options)
	require.NoError(t, err)

	assert.Equal(t, domain.Amount{Currency: "INR", Value: "125.50"}, u.Total)
	require.Len(t, u.DisplayItems, 2)
	assert.Equal(t, OriginalAmountLabel, u.DisplayItems[0].Label)
	assert.Equal(t, "100.00", u.DisplayItems[0].Amount.Value)
	assert.Equal(t, "Option B", u.DisplayItems[1].Label)
	assert.Equal(t, "25.50", u.DisplayItems[1].Amount.Value)
	assert.Equal(t, options, u.ShippingOptions)
}

func TestRecalculate_NoOptions(t *testing.T) {
	u, err := Recalculate(decimal.RequireFromString("50"), "INR", nil)
	require.NoError(t, err)

	assert.Equal(t, "50.00", u.Total.Value)
	assert.Len(t, u.DisplayItems, 1)
}

func TestRecalculate_NothingSelectedTruncatesDisplayItems(t *testing.T) {
	options := []domain.ShippingOption{
		option("A", "10.00", false),
		option("B", "25.50", false),
	}

	u, err := Recalculate(decimal.RequireFromString("19.999"), "INR", options)
	require.NoError(t, err)

	assert.Equal(t, "20.00", u.Total.Value)
	assert.Len(t, u.DisplayItems, 1)
}

func TestRecalculate_LastSelectedWins(t *testing.T) {
	options := []domain.ShippingOption{
		option("A", "10.00", true),
		option("B", "3.25", true),
	}

	u, err := Recalculate(decimal.RequireFromString("1"), "INR", options)
	require.NoError(t, err)

	assert.Equal(t, "4.25", u.Total.Value)
	assert.Equal(t, "Option B", u.DisplayItems[1].Label)
}

func TestRecalculate_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		base, ship, want string
	}{
		{"0.004", "0.001", "0.01"},
		{"10.005", "0", "10.01"},
		{"10.004", "0", "10.00"},
		{"99.995", "0.000", "100.00"},
		{"1.1", "2.2", "3.30"},
	}
	for _, tc := range cases {
		t.Run(tc.base+"+"+tc.ship, func(t *testing.T) {
			u, err := Recalculate(decimal.RequireFromString(tc.base), "USD",
				[]domain.ShippingOption{option("X", tc.ship, true)})
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.Total.Value)
		})
	}
}

func TestRecalculate_Idempotent(t *testing.T) {
	options := []domain.ShippingOption{
		option("A", "10.00", false),
		option("B", "25.50", true),
	}
	base := decimal.RequireFromString("100.00")

	first, err := Recalculate(base, "INR", options)
	require.NoError(t, err)
	second, err := Recalculate(base, "INR", options)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecalculate_DoesNotAliasInput(t *testing.T) {
	options := []domain.ShippingOption{option("A", "1.00", true)}

	u, err := Recalculate(decimal.RequireFromString("1"), "INR", options)
	require.NoError(t, err)

	u.ShippingOptions[0].Selected = false
	assert.True(t, options[0].Selected)
}

func TestRecalculate_InvalidSelectedAmount(t *testing.T) {
	_, err := Recalculate(decimal.RequireFromString("1"), "INR",
		[]domain.ShippingOption{option("A", "free", true)})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
}

func TestRecalculate_InvalidUnselectedAmountIgnored(t *testing.T) {
	u, err := Recalculate(decimal.RequireFromString("1"), "INR",
		[]domain.ShippingOption{option("A", "free", false)})

	require.NoError(t, err)
	assert.Equal(t, "1.00", u.Total.Value)
}

func TestSelectOption(t *testing.T) {
	options := []domain.ShippingOption{
		option("A", "1.00", true),
		option("B", "2.00", false),
		option("C", "3.00", true),
	}

	got := SelectOption(options, "B")

	assert.False(t, got[0].Selected)
	assert.True(t, got[1].Selected)
	assert.False(t, got[2].Selected)
	assert.True(t, options[0].Selected, "input must not be modified")

	none := SelectOption(options, "missing")
	for _, o := range none {
		assert.False(t, o.Selected)
	}
}

func TestApply_KeepsTotalLabel(t *testing.T) {
	details := domain.PaymentDetails{
		Total: domain.LineItem{Label: "Total", Amount: domain.Amount{Currency: "INR", Value: "1.00"}},
		DisplayItems: []domain.LineItem{
			{Label: OriginalAmountLabel},
			{Label: "stale shipping"},
		},
	}

	u, err := Recalculate(decimal.RequireFromString("1"), "INR", nil)
	require.NoError(t, err)
	Apply(&details, u)

	assert.Equal(t, "Total", details.Total.Label)
	assert.Equal(t, "1.00", details.Total.Amount.Value)
	assert.Len(t, details.DisplayItems, 1)
}
