package amount

import (
	"errors"
	"math/big"
	"strings"
)

// FractionDigits is the number of decimal places carried by the smallest unit
// of the stablecoin. One micro-unit equals 10^-6 display units.
const FractionDigits = 6

// BasisPointDivisor converts basis points into a rate fraction; 1 bp = 0.01%.
const BasisPointDivisor = 10_000

var (
	ErrEmptyAmount    = errors.New("amount: empty input")
	ErrInvalidAmount  = errors.New("amount: not a decimal number")
	ErrNegativeAmount = errors.New("amount: must not be negative")
	ErrTooPrecise     = errors.New("amount: more than 6 fractional digits")
)

var microPerUnit = big.NewInt(1_000_000)

// ParseDisplay converts user-entered decimal text into micro-units. The input
// must be a plain non-negative decimal with at most six fractional digits;
// anything else is rejected rather than clamped.
func ParseDisplay(text string) (*big.Int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, ErrNegativeAmount
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	if trimmed == "" || trimmed == "." {
		return nil, ErrInvalidAmount
	}

	wholePart := trimmed
	fracPart := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		wholePart = trimmed[:idx]
		fracPart = trimmed[idx+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return nil, ErrInvalidAmount
		}
	}
	if wholePart == "" && fracPart == "" {
		return nil, ErrInvalidAmount
	}
	if !digitsOnly(wholePart) || !digitsOnly(fracPart) {
		return nil, ErrInvalidAmount
	}
	if len(fracPart) > FractionDigits {
		return nil, ErrTooPrecise
	}

	micro := new(big.Int)
	if wholePart != "" {
		if _, ok := micro.SetString(wholePart, 10); !ok {
			return nil, ErrInvalidAmount
		}
	}
	micro.Mul(micro, microPerUnit)

	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", FractionDigits-len(fracPart))
		frac := new(big.Int)
		if _, ok := frac.SetString(padded, 10); !ok {
			return nil, ErrInvalidAmount
		}
		micro.Add(micro, frac)
	}
	return micro, nil
}

// FormatMicro renders a micro-unit quantity as a decimal display string with
// the requested number of fractional digits. Formatting truncates; it never
// rounds a balance upwards.
func FormatMicro(micro *big.Int, precision int) string {
	if precision < 0 {
		precision = 0
	}
	if precision > FractionDigits {
		precision = FractionDigits
	}
	value := micro
	if value == nil {
		value = big.NewInt(0)
	}
	sign := ""
	if value.Sign() < 0 {
		sign = "-"
		value = new(big.Int).Neg(value)
	}
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(value, microPerUnit, frac)
	if precision == 0 {
		return sign + whole.String()
	}
	digits := frac.String()
	if len(digits) < FractionDigits {
		digits = strings.Repeat("0", FractionDigits-len(digits)) + digits
	}
	return sign + whole.String() + "." + digits[:precision]
}

// RateFraction converts an APY in basis points into its decimal form. The
// float result is sanctioned for the display-only accrual path; stored
// balances never pass through it.
func RateFraction(basisPoints uint64) float64 {
	return float64(basisPoints) / BasisPointDivisor
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
