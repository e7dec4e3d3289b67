// Package payment formats payment requests as wallet-readable URIs.
//
// The format is the durable external contract:
//
//	<scheme>:<address>?amount=<amount>[&dt=<code>.<issuer>]
package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"xrpl_qr/internal/domain"
)

// DefaultScheme is the XRP Ledger payment URI scheme.
const DefaultScheme = "xrpl"

var errMalformedURI = errors.New("malformed payment uri")

// Builder formats payment URIs for one network.
type Builder struct {
	scheme string
}

// NewBuilder creates a builder; an empty scheme means DefaultScheme.
func NewBuilder(scheme string) *Builder {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return &Builder{scheme: scheme}
}

// Scheme returns the configured URI scheme.
func (b *Builder) Scheme() string {
	return b.scheme
}

// Build formats address and amount. Pegged tokens get a single
// "&dt=<code>.<issuer>" suffix so receiving wallets pick the right asset.
func (b *Builder) Build(address domain.Address, amount domain.ConversionResult, target domain.TargetAsset) string {
	var sb strings.Builder
	sb.WriteString(b.scheme)
	sb.WriteByte(':')
	sb.WriteString(string(address))
	sb.WriteString("?amount=")
	sb.WriteString(amount.String())
	if target.IsPegged() {
		sb.WriteString("&dt=")
		sb.WriteString(target.Code)
		sb.WriteByte('.')
		sb.WriteString(string(target.Issuer))
	}
	return sb.String()
}

// BuildRequest formats a validated PaymentRequest.
func (b *Builder) BuildRequest(req domain.PaymentRequest) string {
	return b.Build(req.Address, req.Amount, req.Asset)
}

// ParsedURI is the consumer-side view of a payment URI.
type ParsedURI struct {
	Scheme    string
	Address   domain.Address
	Amount    decimal.Decimal
	RawAmount string
	Code      string // Empty for the native coin
	Issuer    domain.Address
}

// ParseURI parses a URI the way a receiving wallet would. It is strict:
// exactly one amount, at most one dt, no other parameters.
func ParseURI(s string) (ParsedURI, error) {
	var out ParsedURI

	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" {
		return out, fmt.Errorf("%w: missing scheme", errMalformedURI)
	}
	addr, query, ok := strings.Cut(rest, "?")
	if !ok {
		return out, fmt.Errorf("%w: missing query", errMalformedURI)
	}
	if !domain.ValidateAddress(addr) {
		return out, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, addr)
	}
	out.Scheme = scheme
	out.Address = domain.Address(addr)

	seen := make(map[string]bool, 2)
	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			return out, fmt.Errorf("%w: bad parameter %q", errMalformedURI, pair)
		}
		if seen[key] {
			return out, fmt.Errorf("%w: duplicate %q", errMalformedURI, key)
		}
		seen[key] = true

		switch key {
		case "amount":
			if strings.ContainsAny(value, "eE") {
				return out, fmt.Errorf("%w: amount %q", domain.ErrInvalidAmount, value)
			}
			amt, err := decimal.NewFromString(value)
			if err != nil || !amt.IsPositive() {
				return out, fmt.Errorf("%w: amount %q", domain.ErrInvalidAmount, value)
			}
			out.Amount = amt
			out.RawAmount = value
		case "dt":
			code, issuer, ok := strings.Cut(value, ".")
			if !ok || code == "" || !domain.ValidateAddress(issuer) {
				return out, fmt.Errorf("%w: dt %q", errMalformedURI, value)
			}
			out.Code = code
			out.Issuer = domain.Address(issuer)
		default:
			return out, fmt.Errorf("%w: unknown parameter %q", errMalformedURI, key)
		}
	}

	if !seen["amount"] {
		return out, fmt.Errorf("%w: missing amount", errMalformedURI)
	}
	return out, nil
}
