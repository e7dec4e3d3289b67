package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/conversion"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/infra"
	"xrpl_qr/internal/payment"
	"xrpl_qr/internal/render"
	"xrpl_qr/internal/storage"
)

// SecretsPath is where the price service key may be kept.
var SecretsPath = filepath.Join("secrets", "price.yaml")

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Metrics   *infra.Metrics
	Store     storage.Store
	Prices    *infra.PriceClient
	Generator *Generator
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires every component.
// An explicit configPath must exist; otherwise the resolved default is optional.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config (Dynamic Path Resolution)
	required := configPath != ""
	if configPath == "" {
		configPath = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(configPath, required)
	if err != nil {
		return err // Let main handle the error
	}

	secrets, err := infra.LoadSecretConfig(SecretsPath)
	switch {
	case err == nil:
		infra.ApplySecrets(cfg, secrets)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Debug("🚀 Bootstrapping xrpqr...", slog.String("config", configPath))

	// 3. Storage
	dbPath := infra.ResolveStoragePath(cfg)
	if err := infra.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.Open(cfg.Storage.Driver, dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Debug("✅ Store opened", slog.String("driver", cfg.Storage.Driver), slog.String("path", dbPath))

	// 4. Pricing
	b.Metrics = infra.NewMetrics()
	prices, err := infra.NewPriceClientFromConfig(cfg, b.Metrics)
	if err != nil {
		return err
	}
	b.Prices = prices

	table, err := FallbackTableFromConfig(cfg)
	if err != nil {
		return err
	}
	converter := conversion.NewConverter(prices, table, cfg.Network.NativePriceID, cfg.PriceService.ReferenceAssetID)

	// 5. Generator
	gen, err := NewGenerator(ctx, GeneratorDeps{
		Converter: converter,
		Builder:   payment.NewBuilder(cfg.Network.Scheme),
		Renderer:  render.NewQRRenderer(cfg.QR.Size),
		Store:     store,
		Metrics:   b.Metrics,
		Assets:    AssetsFromConfig(cfg),
	})
	if err != nil {
		return err
	}
	b.Generator = gen
	slog.Debug("✅ Generator ready")

	return nil
}

// Close releases the price client and the store.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Prices != nil {
		errs = append(errs, b.Prices.Close())
	}
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	return errors.Join(errs...)
}

// AssetsFromConfig returns the native coin followed by the pegged token.
func AssetsFromConfig(cfg *infra.Config) []domain.TargetAsset {
	peg, _ := domain.ParseFiatCurrency(cfg.Token.PegCurrency) // checked by Validate
	return []domain.TargetAsset{
		domain.NativeAsset(cfg.Network.NativeCode, cfg.Network.NativePrecision),
		domain.PeggedAsset(
			cfg.Token.Code,
			domain.Address(cfg.Token.Issuer),
			peg,
			cfg.Token.Precision,
		),
	}
}

// FallbackTableFromConfig parses the configured rows.
func FallbackTableFromConfig(cfg *infra.Config) (*conversion.FallbackTable, error) {
	entries := make(map[domain.FiatCurrency]conversion.FallbackEntry, len(cfg.Fallback))
	for code, row := range cfg.Fallback {
		cur, err := domain.ParseFiatCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		native, err := decimal.NewFromString(row.NativePrice)
		if err != nil {
			return nil, fmt.Errorf("fallback %s native_price: %w", code, err)
		}
		usd, err := decimal.NewFromString(row.USDRate)
		if err != nil {
			return nil, fmt.Errorf("fallback %s usd_rate: %w", code, err)
		}
		entries[cur] = conversion.FallbackEntry{NativePrice: native, USDRate: usd}
	}
	return conversion.NewFallbackTable(entries)
}
