package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ConversionResult is an amount denominated in the target asset.
// Amount is already rounded to Precision.
type ConversionResult struct {
	Amount     decimal.Decimal
	Precision  int32
	Rate       decimal.Decimal // Native: asset price in base. Pegged: base->peg factor.
	Provenance Provenance
}

// String returns the fixed-point form used in the payment URI.
func (r ConversionResult) String() string {
	return r.Amount.StringFixed(r.Precision)
}

// PaymentRequest is the sole input to URI formatting.
type PaymentRequest struct {
	Address Address
	Amount  ConversionResult
	Asset   TargetAsset
}

// NewPaymentRequest checks the address once more so a PaymentRequest
// never carries an invalid destination.
func NewPaymentRequest(addr Address, amount ConversionResult, asset TargetAsset) (PaymentRequest, error) {
	if !ValidateAddress(string(addr)) {
		return PaymentRequest{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return PaymentRequest{Address: addr, Amount: amount, Asset: asset}, nil
}

// MaxFiatAmount is the largest accepted input amount.
var MaxFiatAmount = decimal.New(1, 15)

// ParseFiatAmount parses form input. Empty, non-numeric, non-positive,
// exponent-form and oversized values are all ErrInvalidAmount.
func ParseFiatAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	// decimal accepts any int32 exponent; "1e2000000000" would expand to
	// billions of digits on Round.
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q must be a plain decimal number", ErrInvalidAmount, s)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if amount.GreaterThan(MaxFiatAmount) {
		return decimal.Zero, fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, MaxFiatAmount)
	}
	return amount, nil
}
