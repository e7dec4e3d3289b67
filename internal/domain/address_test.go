package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"classic address", "rQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW", true},
		{"min length 25", "r" + strings.Repeat("a", 24), true},
		{"max length 35", "r" + strings.Repeat("B", 34), true},
		{"too short 24", "r" + strings.Repeat("a", 23), false},
		{"too long 36", "r" + strings.Repeat("a", 35), false},
		{"wrong prefix", "xQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW", false},
		{"upper-case prefix", "RQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW", false},
		{"non-alphanumeric body", "rQERimqpZebP1Knt3BCMZHDMJWZ7u6Z-uW", false},
		{"embedded space", "rQERimqpZebP1Knt3BCM HDMJWZ7u6ZBuW", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateAddress(tt.in); got != tt.want {
				t.Errorf("ValidateAddress(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("  rQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW\n")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr != "rQERimqpZebP1Knt3BCMZHDMJWZ7u6ZBuW" {
		t.Errorf("Expected trimmed address, got %q", addr)
	}

	_, err = ParseAddress("xabcdefghijklmnopqrstuvwxyz")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}
