package conversion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/domain"
)

// RateSource returns the price of one unit of assetID in base.
// Implementations make at most one network call and never retry.
type RateSource interface {
	FetchRate(ctx context.Context, base domain.FiatCurrency, assetID string) (decimal.Decimal, error)
}

// Converter turns a fiat amount into a target-asset amount, preferring the
// live source and falling back to the static table.
type Converter struct {
	source      RateSource
	fallback    *FallbackTable
	nativeID    string // Price-service id of the native coin
	referenceID string // Asset quoted in both currencies for cross rates
}

// NewConverter wires a converter. referenceID defaults to nativeID.
func NewConverter(source RateSource, fallback *FallbackTable, nativeID, referenceID string) *Converter {
	if referenceID == "" {
		referenceID = nativeID
	}
	return &Converter{
		source:      source,
		fallback:    fallback,
		nativeID:    nativeID,
		referenceID: referenceID,
	}
}

// Fallback exposes the table so callers can list supported currencies.
func (c *Converter) Fallback() *FallbackTable {
	return c.fallback
}

// Convert converts amount of base into target. A non-positive amount is
// rejected before any lookup.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, base domain.FiatCurrency, target domain.TargetAsset) (domain.ConversionResult, error) {
	if !amount.IsPositive() {
		return domain.ConversionResult{}, fmt.Errorf("%w: must be greater than zero", domain.ErrInvalidAmount)
	}

	switch target.Kind {
	case domain.AssetNative:
		return c.convertNative(ctx, amount, base, target)
	case domain.AssetPegged:
		return c.convertPegged(ctx, amount, base, target)
	default:
		return domain.ConversionResult{}, fmt.Errorf("%w: asset %s", domain.ErrUnsupportedCurrencyPair, target.Code)
	}
}

func (c *Converter) convertNative(ctx context.Context, amount decimal.Decimal, base domain.FiatCurrency, target domain.TargetAsset) (domain.ConversionResult, error) {
	rate, err := c.source.FetchRate(ctx, base, c.nativeID)
	provenance := domain.ProvenanceLive
	if err != nil {
		rate, provenance, err = c.useFallback(ctx, err, base, target)
		if err != nil {
			return domain.ConversionResult{}, err
		}
	}

	return domain.ConversionResult{
		Amount:     amount.Div(rate).Round(target.Precision),
		Precision:  target.Precision,
		Rate:       rate,
		Provenance: provenance,
	}, nil
}

func (c *Converter) convertPegged(ctx context.Context, amount decimal.Decimal, base domain.FiatCurrency, target domain.TargetAsset) (domain.ConversionResult, error) {
	// 1:1 by definition; no lookup.
	if base == target.PegCurrency {
		return domain.ConversionResult{
			Amount:     amount.Round(target.Precision),
			Precision:  target.Precision,
			Rate:       decimal.NewFromInt(1),
			Provenance: domain.ProvenanceLive,
		}, nil
	}

	rate, err := c.crossRate(ctx, base, target.PegCurrency)
	provenance := domain.ProvenanceLive
	if err != nil {
		rate, provenance, err = c.useFallback(ctx, err, base, target)
		if err != nil {
			return domain.ConversionResult{}, err
		}
	}

	return domain.ConversionResult{
		Amount:     amount.Mul(rate).Round(target.Precision),
		Precision:  target.Precision,
		Rate:       rate,
		Provenance: provenance,
	}, nil
}

// crossRate derives the base->quote factor from the reference asset's
// price in both currencies. Lookups run sequentially.
func (c *Converter) crossRate(ctx context.Context, base, quote domain.FiatCurrency) (decimal.Decimal, error) {
	quotePrice, err := c.source.FetchRate(ctx, quote, c.referenceID)
	if err != nil {
		return decimal.Zero, err
	}
	basePrice, err := c.source.FetchRate(ctx, base, c.referenceID)
	if err != nil {
		return decimal.Zero, err
	}
	return quotePrice.Div(basePrice), nil
}

func (c *Converter) useFallback(ctx context.Context, liveErr error, base domain.FiatCurrency, target domain.TargetAsset) (decimal.Decimal, domain.Provenance, error) {
	// A cancelled action is discarded upstream; don't dress it up as a result.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return decimal.Zero, 0, ctxErr
	}

	rate, err := c.fallback.Rate(base, target)
	if err != nil {
		slog.Warn("No fallback rate",
			slog.String("currency", base.String()),
			slog.String("asset", target.Code),
			slog.Any("live_error", liveErr))
		return decimal.Zero, 0, err
	}

	slog.Warn("Live rate unavailable, using fallback",
		slog.String("currency", base.String()),
		slog.String("asset", target.Code),
		slog.String("rate", rate.String()),
		slog.Any("error", liveErr))
	return rate, domain.ProvenanceFallback, nil
}
