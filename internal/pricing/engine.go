package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// PremiumTier is the only tier label that earns a discount.
	PremiumTier = "premium"
	// DefaultTier is applied when the caller does not name a tier.
	DefaultTier = "regular"
)

var premiumRate = decimal.RequireFromString("0.90")

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNegativeUnitPrice   = errors.New("unit_price must be non-negative")
	ErrNegativeSubtotal    = errors.New("subtotal must be non-negative")
)

// LineItem describes a single cart line used for pricing calculation.
type LineItem struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total is the amount due after the tier rule has been applied.
// Whole is set for premium totals, which are truncated to an integer.
type Total struct {
	Amount decimal.Decimal
	Whole  bool
}

// String renders the total the way it is written on the wire.
func (t Total) String() string {
	if t.Whole {
		return t.Amount.StringFixed(0)
	}
	return t.Amount.StringFixed(2)
}

// MarshalJSON encodes the total as a bare JSON number.
func (t Total) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// ComputeSubtotal sums quantity times unit price over items and rounds once,
// half to even, to two decimal places.
func ComputeSubtotal(items []LineItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for i, it := range items {
		if it.Quantity <= 0 {
			return decimal.Zero, fmt.Errorf("item %d (%q): %w", i, it.SKU, ErrNonPositiveQuantity)
		}
		if it.UnitPrice.IsNegative() {
			return decimal.Zero, fmt.Errorf("item %d (%q): %w", i, it.SKU, ErrNegativeUnitPrice)
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return subtotal.RoundBank(2), nil
}

// ApplyDiscount applies the tier rule to subtotal. Premium totals are 90% of
// the subtotal truncated toward zero, dropping fractional units entirely;
// every other tier is returned unchanged at two decimal places.
func ApplyDiscount(subtotal decimal.Decimal, tier string) (Total, error) {
	if subtotal.IsNegative() {
		return Total{}, ErrNegativeSubtotal
	}
	if tier == PremiumTier {
		return Total{Amount: subtotal.Mul(premiumRate).Truncate(0), Whole: true}, nil
	}
	return Total{Amount: subtotal.RoundBank(2)}, nil
}
