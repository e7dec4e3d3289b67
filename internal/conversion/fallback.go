package conversion

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/domain"
)

// FallbackEntry holds the approximate quotes for one fiat currency.
// Keeping both numbers in one entry makes the table total: a currency is
// either fully supported for every asset or not present at all.
type FallbackEntry struct {
	NativePrice decimal.Decimal // Price of one native coin in this currency
	USDRate     decimal.Decimal // Value of one unit of this currency in USD
}

// FallbackTable is the static rate table used when the live source fails.
type FallbackTable struct {
	entries map[domain.FiatCurrency]FallbackEntry
}

// DefaultFallbackTable returns the built-in estimates.
func DefaultFallbackTable() *FallbackTable {
	t, _ := NewFallbackTable(map[domain.FiatCurrency]FallbackEntry{
		domain.USD: {NativePrice: decimal.RequireFromString("0.52"), USDRate: decimal.NewFromInt(1)},
		domain.EUR: {NativePrice: decimal.RequireFromString("0.45"), USDRate: decimal.RequireFromString("1.09")},
	})
	return t
}

// NewFallbackTable validates and copies entries. USD must be present
// because pegged-token cross rates are expressed against it.
func NewFallbackTable(entries map[domain.FiatCurrency]FallbackEntry) (*FallbackTable, error) {
	if _, ok := entries[domain.USD]; !ok {
		return nil, fmt.Errorf("fallback table must contain %s", domain.USD)
	}
	if !entries[domain.USD].USDRate.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fallback %s usd rate must be 1", domain.USD)
	}

	copied := make(map[domain.FiatCurrency]FallbackEntry, len(entries))
	for cur, e := range entries {
		if !e.NativePrice.IsPositive() || !e.USDRate.IsPositive() {
			return nil, fmt.Errorf("fallback rates for %s must be positive", cur)
		}
		copied[cur] = e
	}
	return &FallbackTable{entries: copied}, nil
}

// Supports reports whether cur has a fallback entry.
func (t *FallbackTable) Supports(cur domain.FiatCurrency) bool {
	_, ok := t.entries[cur]
	return ok
}

// Currencies returns the supported currency set in stable order.
func (t *FallbackTable) Currencies() []domain.FiatCurrency {
	out := make([]domain.FiatCurrency, 0, len(t.entries))
	for cur := range t.entries {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rate returns the fallback quote for (base, asset): the native coin price
// in base, or the base->peg factor for a pegged token.
func (t *FallbackTable) Rate(base domain.FiatCurrency, asset domain.TargetAsset) (decimal.Decimal, error) {
	entry, ok := t.entries[base]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no fallback for %s/%s", domain.ErrUnsupportedCurrencyPair, base, asset.Code)
	}

	switch asset.Kind {
	case domain.AssetNative:
		return entry.NativePrice, nil
	case domain.AssetPegged:
		peg, ok := t.entries[asset.PegCurrency]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no fallback for peg currency %s", domain.ErrUnsupportedCurrencyPair, asset.PegCurrency)
		}
		return entry.USDRate.Div(peg.USDRate), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: asset kind %s", domain.ErrUnsupportedCurrencyPair, asset.Kind)
	}
}
