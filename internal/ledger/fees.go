package ledger

import "github.com/shopspring/decimal"

// Fees are expressed in basis points over a fixed denominator of 10000.
// The marketplace cap is 10%.
const (
	FeeDenominator    = 10000
	MaxFeeBasisPoints = 1000
)

// SplitPrice divides a sale price into the marketplace fee and the seller
// proceeds. The fee is price × bps × 10⁻⁴ computed as an exact decimal
// multiplication, so fee + proceeds always reconstructs the price with no
// value created or destroyed.
func SplitPrice(price decimal.Decimal, bps uint32) (fee, proceeds decimal.Decimal) {
	fee = price.Mul(decimal.New(int64(bps), -4))
	return fee, price.Sub(fee)
}

// ValidateFeeBasisPoints enforces the fee cap.
func ValidateFeeBasisPoints(bps uint32) error {
	if bps > MaxFeeBasisPoints {
		return ErrFeeTooHigh
	}
	return nil
}
