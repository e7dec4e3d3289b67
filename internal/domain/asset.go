package domain

import (
	"fmt"
	"strings"
)

// FiatCurrency is an upper-case ISO 4217 code (e.g., "USD").
type FiatCurrency string

const (
	USD FiatCurrency = "USD"
	EUR FiatCurrency = "EUR"
)

// ParseFiatCurrency normalizes a user supplied code. Only the shape is
// checked here; whether the currency is supported is decided by the
// fallback table.
func ParseFiatCurrency(s string) (FiatCurrency, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: currency %q", ErrUnsupportedCurrencyPair, s)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: currency %q", ErrUnsupportedCurrencyPair, s)
		}
	}
	return FiatCurrency(code), nil
}

// Lower returns the code as the price service expects it ("usd").
func (c FiatCurrency) Lower() string {
	return strings.ToLower(string(c))
}

func (c FiatCurrency) String() string {
	return string(c)
}

// AssetKind distinguishes the ledger's own coin from issued tokens.
type AssetKind int

const (
	AssetNative AssetKind = iota
	AssetPegged
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "NATIVE"
	case AssetPegged:
		return "PEGGED"
	default:
		return "UNKNOWN"
	}
}

// TargetAsset is the asset the payer is asked to send.
type TargetAsset struct {
	Kind      AssetKind
	Code      string // "XRP", "RLUSD"
	Precision int32  // Decimal places in the URI and display

	// Pegged only
	Issuer      Address
	PegCurrency FiatCurrency
}

// NativeAsset describes the ledger's native coin.
func NativeAsset(code string, precision int32) TargetAsset {
	return TargetAsset{Kind: AssetNative, Code: code, Precision: precision}
}

// PeggedAsset describes an issued token held 1:1 against peg.
func PeggedAsset(code string, issuer Address, peg FiatCurrency, precision int32) TargetAsset {
	return TargetAsset{
		Kind:        AssetPegged,
		Code:        code,
		Precision:   precision,
		Issuer:      issuer,
		PegCurrency: peg,
	}
}

// IsPegged reports whether the asset needs an issuer in the payment URI.
func (a TargetAsset) IsPegged() bool {
	return a.Kind == AssetPegged
}

// Provenance records where a conversion rate came from.
type Provenance int

const (
	ProvenanceLive Provenance = iota + 1
	ProvenanceFallback
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceLive:
		return "LIVE"
	case ProvenanceFallback:
		return "FALLBACK"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets provenance appear by name in JSON and logs.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
