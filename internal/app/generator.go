package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/conversion"
	"xrpl_qr/internal/domain"
	"xrpl_qr/internal/event"
	"xrpl_qr/internal/infra"
	"xrpl_qr/internal/payment"
	"xrpl_qr/internal/render"
	"xrpl_qr/internal/storage"
)

// Input is one generate action as typed by the user.
type Input struct {
	Address  string
	Amount   string
	Currency string // Empty means USD
	Asset    string // Empty means the first configured asset
}

// Output is a finished payment code.
type Output struct {
	Seq        uint64
	Request    domain.PaymentRequest
	FiatAmount decimal.Decimal
	Currency   domain.FiatCurrency
	URI        string
	PNG        []byte
}

// RateLine describes the rate used, for display.
func (o *Output) RateLine() string {
	return render.RateLine(o.Request.Amount, o.Currency, o.Request.Asset)
}

// AmountLine is "<amount> <code>".
func (o *Output) AmountLine() string {
	return render.AmountLine(o.Request.Amount, o.Request.Asset)
}

// Event converts the output into its history record.
func (o *Output) Event(ts time.Time) event.PaymentGeneratedEvent {
	return event.PaymentGeneratedEvent{
		BaseEvent:  event.BaseEvent{Seq: o.Seq, Ts: ts.UnixMicro()},
		Address:    o.Request.Address.String(),
		FiatAmount: o.FiatAmount.String(),
		Currency:   o.Currency.String(),
		Asset:      o.Request.Asset.Code,
		Amount:     o.Request.Amount.String(),
		Rate:       o.Request.Amount.Rate.String(),
		Provenance: o.Request.Amount.Provenance.String(),
		URI:        o.URI,
	}
}

// GeneratorDeps are the collaborators of a Generator. Store and Metrics
// may be nil.
type GeneratorDeps struct {
	Converter *conversion.Converter
	Builder   *payment.Builder
	Renderer  *render.QRRenderer
	Store     storage.Store
	Metrics   *infra.Metrics
	Assets    []domain.TargetAsset // First is the default
}

// Generator runs generate actions: validate, convert, format, render.
type Generator struct {
	converter *conversion.Converter
	builder   *payment.Builder
	renderer  *render.QRRenderer
	store     storage.Store
	metrics   *infra.Metrics
	assets    []domain.TargetAsset

	seq atomic.Uint64
	now func() time.Time
}

// NewGenerator creates a generator and resumes the history sequence.
func NewGenerator(ctx context.Context, deps GeneratorDeps) (*Generator, error) {
	if deps.Converter == nil || deps.Builder == nil || deps.Renderer == nil {
		return nil, errors.New("generator: converter, builder and renderer are required")
	}
	if len(deps.Assets) == 0 {
		return nil, errors.New("generator: no target assets configured")
	}

	g := &Generator{
		converter: deps.Converter,
		builder:   deps.Builder,
		renderer:  deps.Renderer,
		store:     deps.Store,
		metrics:   deps.Metrics,
		assets:    deps.Assets,
		now:       time.Now,
	}

	if g.store != nil {
		last, err := g.store.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resume history: %w", err)
		}
		g.seq.Store(last)
	}
	return g, nil
}

// Assets returns the selectable target assets.
func (g *Generator) Assets() []domain.TargetAsset {
	return g.assets
}

// Currencies returns the selectable fiat currencies.
func (g *Generator) Currencies() []domain.FiatCurrency {
	return g.converter.Fallback().Currencies()
}

// Builder returns the URI builder in use.
func (g *Generator) Builder() *payment.Builder {
	return g.builder
}

// Generate validates in, converts the amount and renders the code.
// Amount and address are checked before any rate lookup.
func (g *Generator) Generate(ctx context.Context, in Input) (*Output, error) {
	amount, err := domain.ParseFiatAmount(in.Amount)
	if err != nil {
		g.reject(ctx, "invalid_amount", in, err)
		return nil, err
	}

	addr, err := domain.ParseAddress(in.Address)
	if err != nil {
		g.reject(ctx, "invalid_address", in, err)
		return nil, err
	}

	currency, asset, err := g.resolve(in)
	if err != nil {
		g.reject(ctx, "unsupported_pair", in, err)
		return nil, err
	}

	result, err := g.converter.Convert(ctx, amount, currency, asset)
	if err != nil {
		if ctx.Err() == nil {
			g.reject(ctx, reasonOf(err), in, err)
		}
		return nil, err
	}
	g.metrics.ObserveConversion(asset.Code, result.Provenance.String())

	req, err := domain.NewPaymentRequest(addr, result, asset)
	if err != nil {
		return nil, err
	}

	uri := g.builder.BuildRequest(req)
	png, err := g.renderer.PNG(uri)
	if err != nil {
		g.metrics.ObserveGenerateFailure("render")
		return nil, err
	}

	out := &Output{
		Seq:        g.seq.Add(1),
		Request:    req,
		FiatAmount: amount,
		Currency:   currency,
		URI:        uri,
		PNG:        png,
	}

	slog.Info("Payment code generated",
		slog.Uint64("seq", out.Seq),
		slog.String("asset", asset.Code),
		slog.String("amount", result.String()),
		slog.String("provenance", result.Provenance.String()))

	return out, nil
}

// Commit remembers the address of out under addressKey and records it in
// the history. Generate never persists; callers commit only outputs that
// are still current.
func (g *Generator) Commit(ctx context.Context, out *Output, addressKey string) {
	if g.store == nil || out == nil {
		return
	}
	if err := g.store.Set(ctx, addressKey, out.Request.Address.String()); err != nil {
		slog.Warn("Failed to remember address", slog.Any("error", err))
	}
	if err := g.store.Append(ctx, out.Event(g.now())); err != nil {
		slog.Warn("Failed to append history", slog.Uint64("seq", out.Seq), slog.Any("error", err))
	}
}

// Publish completes token on sess and commits out while the session still
// holds it. A superseded token returns domain.ErrStale and nothing is
// stored.
func (g *Generator) Publish(ctx context.Context, sess *Session, token uint64, out *Output, addressKey string) error {
	return sess.Complete(token, out, func(o *Output) {
		g.Commit(ctx, o, addressKey)
	})
}

func (g *Generator) resolve(in Input) (domain.FiatCurrency, domain.TargetAsset, error) {
	code := in.Currency
	if strings.TrimSpace(code) == "" {
		code = string(domain.USD)
	}
	currency, err := domain.ParseFiatCurrency(code)
	if err != nil {
		return "", domain.TargetAsset{}, err
	}
	if !g.converter.Fallback().Supports(currency) {
		return "", domain.TargetAsset{}, fmt.Errorf("%w: currency %s", domain.ErrUnsupportedCurrencyPair, currency)
	}

	asset, ok := g.lookupAsset(in.Asset)
	if !ok {
		return "", domain.TargetAsset{}, fmt.Errorf("%w: asset %q", domain.ErrUnsupportedCurrencyPair, in.Asset)
	}
	return currency, asset, nil
}

func (g *Generator) lookupAsset(code string) (domain.TargetAsset, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return g.assets[0], true
	}
	for _, a := range g.assets {
		if strings.EqualFold(a.Code, code) {
			return a, true
		}
	}
	return domain.TargetAsset{}, false
}

// reject records a generate action that produced no URI.
func (g *Generator) reject(ctx context.Context, reason string, in Input, cause error) {
	g.metrics.ObserveGenerateFailure(reason)
	slog.Info("Generate rejected", slog.String("reason", reason), slog.Any("error", cause))

	if g.store == nil {
		return
	}
	ev := event.GenerateRejectedEvent{
		BaseEvent: event.BaseEvent{Seq: g.seq.Add(1), Ts: g.now().UnixMicro()},
		Reason:    reason,
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Asset:     strings.TrimSpace(in.Asset),
		Detail:    cause.Error(),
	}
	if err := g.store.Append(ctx, ev); err != nil {
		slog.Warn("Failed to append history", slog.Uint64("seq", ev.Seq), slog.Any("error", err))
	}
}

// RememberedAddress returns the address stored under addressKey, if any.
func (g *Generator) RememberedAddress(ctx context.Context, addressKey string) (string, bool, error) {
	if g.store == nil {
		return "", false, nil
	}
	return g.store.Get(ctx, addressKey)
}

// ForgetAddress clears the address stored under addressKey.
func (g *Generator) ForgetAddress(ctx context.Context, addressKey string) error {
	if g.store == nil {
		return nil
	}
	return g.store.Remove(ctx, addressKey)
}

// History returns up to limit events starting at fromSeq.
func (g *Generator) History(ctx context.Context, fromSeq uint64, limit int) ([]event.Event, error) {
	if g.store == nil {
		return nil, nil
	}
	return g.store.Load(ctx, fromSeq, limit)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, domain.ErrUnsupportedCurrencyPair):
		return "unsupported_pair"
	default:
		return "internal"
	}
}
