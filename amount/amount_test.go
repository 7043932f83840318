package amount

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseDisplay(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"100", 100_000_000},
		{"0.5", 500_000},
		{"12.345678", 12_345_678},
		{" 7.25 ", 7_250_000},
		{"+3", 3_000_000},
		{".000001", 1},
	}
	for _, tc := range cases {
		got, err := ParseDisplay(tc.input)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("parse %q: got %s want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseDisplayRejectsBadInput(t *testing.T) {
	cases := []struct {
		input string
		want  error
	}{
		{"", ErrEmptyAmount},
		{"   ", ErrEmptyAmount},
		{"-1", ErrNegativeAmount},
		{"-0.5", ErrNegativeAmount},
		{"abc", ErrInvalidAmount},
		{"1.2.3", ErrInvalidAmount},
		{"1e6", ErrInvalidAmount},
		{".", ErrInvalidAmount},
		{"1.0000001", ErrTooPrecise},
	}
	for _, tc := range cases {
		if _, err := ParseDisplay(tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("parse %q: got %v want %v", tc.input, err, tc.want)
		}
	}
}

func TestFormatMicro(t *testing.T) {
	cases := []struct {
		micro     int64
		precision int
		want      string
	}{
		{0, 2, "0.00"},
		{100_000_000, 2, "100.00"},
		{100_013_368, 2, "100.01"},
		{100_013_368, 6, "100.013368"},
		{999_999, 2, "0.99"},
		{1_000_000, 0, "1"},
		{-2_500_000, 2, "-2.50"},
	}
	for _, tc := range cases {
		got := FormatMicro(big.NewInt(tc.micro), tc.precision)
		if got != tc.want {
			t.Fatalf("format %d/%d: got %q want %q", tc.micro, tc.precision, got, tc.want)
		}
	}
}

func TestFormatMicroNil(t *testing.T) {
	if got := FormatMicro(nil, 2); got != "0.00" {
		t.Fatalf("nil micro: got %q", got)
	}
}

func TestParseFormatRoundTripPreservesPrecision(t *testing.T) {
	micro, err := ParseDisplay("123456.654321")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := FormatMicro(micro, 6); got != "123456.654321" {
		t.Fatalf("round trip: got %q", got)
	}
}

func TestRateFraction(t *testing.T) {
	if got := RateFraction(500); got != 0.05 {
		t.Fatalf("500bp: got %v", got)
	}
	if got := RateFraction(0); got != 0 {
		t.Fatalf("0bp: got %v", got)
	}
}
