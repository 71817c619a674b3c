package quant

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestScale_ParsePx(t *testing.T) {
	tests := []struct {
		name  string
		scale Scale
		in    string
		want  Px
	}{
		{"cents", 2, "99.50", 9950},
		{"cents short", 2, "100.5", 10050},
		{"four decimals", 4, "99.5", 995000},
		{"integer", 0, "12345", 12345},
		{"negative", 2, "-0.01", -1},
		{"trailing zeros beyond scale", 2, "1.2300", 123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scale.ParsePx(tt.in)
			if err != nil {
				t.Fatalf("ParsePx(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePx(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestScale_Rejects(t *testing.T) {
	t.Run("too precise", func(t *testing.T) {
		_, err := Scale(2).ParsePx("1.005")
		if !errors.Is(err, ErrPrecision) {
			t.Errorf("Expected ErrPrecision, got %v", err)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := Scale(8).ParseQty("999999999999999")
		if !errors.Is(err, ErrOverflow) {
			t.Errorf("Expected ErrOverflow, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := Scale(2).ParsePx("abc"); err == nil {
			t.Error("Expected parse error")
		}
	})
}

func TestScale_Decimal(t *testing.T) {
	got := Scale(2).Decimal(9950)
	if !got.Equal(decimal.RequireFromString("99.5")) {
		t.Errorf("Expected 99.5, got %s", got)
	}
}

func TestFromUnixMilli(t *testing.T) {
	if got := FromUnixMilli(1500); got != 1_500_000_000 {
		t.Errorf("Expected 1500000000, got %d", got)
	}
	if got := FromUnixMilli(-1); got != 0 {
		t.Errorf("Expected 0 for negative input, got %d", got)
	}
}
