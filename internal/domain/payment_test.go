package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseFiatAmount(t *testing.T) {
	t.Run("valid amounts", func(t *testing.T) {
		for in, want := range map[string]string{
			"10":               "10",
			" 12.5 ":           "12.5",
			"0.01":             "0.01",
			"1000000":          "1000000",
			"1000000000000000": "1000000000000000",
		} {
			got, err := ParseFiatAmount(in)
			if err != nil {
				t.Fatalf("ParseFiatAmount(%q) failed: %v", in, err)
			}
			if !got.Equal(decimal.RequireFromString(want)) {
				t.Errorf("ParseFiatAmount(%q) = %s, want %s", in, got, want)
			}
		}
	})

	t.Run("invalid amounts", func(t *testing.T) {
		for _, in := range []string{"", "   ", "0", "0.00", "-5", "ten", "1,5",
			"1e30000000", "1e2000000000", "1E3", "1e-30", "2.5e1", "1000000000000000.01"} {
			if _, err := ParseFiatAmount(in); !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseFiatAmount(%q): expected ErrInvalidAmount, got %v", in, err)
			}
		}
	})
}

func TestConversionResult_String(t *testing.T) {
	r := ConversionResult{Amount: decimal.RequireFromString("10.9"), Precision: 2}
	if r.String() != "10.90" {
		t.Errorf("Expected 10.90, got %s", r.String())
	}

	r = ConversionResult{Amount: decimal.RequireFromString("19.230769"), Precision: 6}
	if r.String() != "19.230769" {
		t.Errorf("Expected 19.230769, got %s", r.String())
	}
}

func TestNewPaymentRequest_RejectsInvalidAddress(t *testing.T) {
	_, err := NewPaymentRequest("nope", ConversionResult{}, NativeAsset("XRP", 6))
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

func TestParseFiatCurrency(t *testing.T) {
	c, err := ParseFiatCurrency(" eur ")
	if err != nil {
		t.Fatalf("ParseFiatCurrency failed: %v", err)
	}
	if c != EUR {
		t.Errorf("Expected EUR, got %s", c)
	}
	if c.Lower() != "eur" {
		t.Errorf("Expected eur, got %s", c.Lower())
	}

	for _, in := range []string{"", "EURO", "U$D", "12"} {
		if _, err := ParseFiatCurrency(in); !errors.Is(err, ErrUnsupportedCurrencyPair) {
			t.Errorf("ParseFiatCurrency(%q): expected ErrUnsupportedCurrencyPair, got %v", in, err)
		}
	}
}

func TestProvenance_String(t *testing.T) {
	if ProvenanceLive.String() != "LIVE" {
		t.Errorf("Expected LIVE, got %s", ProvenanceLive)
	}
	if ProvenanceFallback.String() != "FALLBACK" {
		t.Errorf("Expected FALLBACK, got %s", ProvenanceFallback)
	}
	text, _ := ProvenanceFallback.MarshalText()
	if string(text) != "FALLBACK" {
		t.Errorf("Expected FALLBACK text, got %s", text)
	}
}
