package accrual

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"yieldwallet/amount"
)

const secondsPerYear = 365 * 24 * 60 * 60

const (
	defaultMainDigits  = 2
	defaultExtraDigits = 3
)

var microPerUnit = big.NewInt(1_000_000)

// Display is the decomposed live balance handed to the view layer. Whole and
// MainFraction are always populated; ExtraFraction is empty until the accrued
// delta is large enough for the extra digits to be meaningful.
type Display struct {
	Whole         string
	MainFraction  string
	ExtraFraction string
}

// Tracker turns a fixed principal and rate into a continuously growing
// display value as a pure function of wall-clock time. The principal is never
// mutated here: the compounding growth factor uses float64, which is
// acceptable because it only produces a display delta layered on top of the
// integer ledger.
type Tracker struct {
	mu             sync.Mutex
	principalMicro *big.Int
	rateFraction   float64
	anchor         time.Time
	mainDigits     int
	extraDigits    int
	// floorMicro is the last value shown; Value clamps against it so the
	// display is monotonically non-decreasing between anchors.
	floorMicro *big.Int
}

// NewTracker anchors a tracker at the given principal and APY.
func NewTracker(principalMicro *big.Int, apyBasisPoints uint64, anchor time.Time) *Tracker {
	t := &Tracker{
		mainDigits:  defaultMainDigits,
		extraDigits: defaultExtraDigits,
	}
	t.Anchor(principalMicro, apyBasisPoints, anchor)
	return t
}

// SetDigits adjusts how many fraction digits are always shown and how many
// extra digits appear once significant.
func (t *Tracker) SetDigits(main, extra int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if main > 0 && main <= 6 {
		t.mainDigits = main
	}
	if extra >= 0 && t.mainDigits+extra <= 6 {
		t.extraDigits = extra
	}
}

// Anchor re-bases the tracker on a confirmed principal. This is the only
// event allowed to move the display outside its monotonic envelope, and it
// moves it by exactly the confirmed delta: the next Value equals the new
// principal plus zero elapsed growth.
func (t *Tracker) Anchor(principalMicro *big.Int, apyBasisPoints uint64, at time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if principalMicro == nil || principalMicro.Sign() < 0 {
		t.principalMicro = big.NewInt(0)
	} else {
		t.principalMicro = new(big.Int).Set(principalMicro)
	}
	t.rateFraction = amount.RateFraction(apyBasisPoints)
	t.anchor = at
	t.floorMicro = new(big.Int).Set(t.principalMicro)
}

// Value computes the display at the given instant.
func (t *Tracker) Value(now time.Time) Display {
	if t == nil {
		return Display{Whole: "0", MainFraction: strings.Repeat("0", defaultMainDigits)}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := now.Sub(t.anchor).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	accruedMicro := big.NewInt(0)
	if t.rateFraction > 0 && elapsed > 0 && t.principalMicro.Sign() > 0 {
		principal, _ := new(big.Float).SetInt(t.principalMicro).Float64()
		growth := math.Pow(1+t.rateFraction, elapsed/secondsPerYear) - 1
		if growth > 0 {
			accruedMicro = big.NewInt(int64(math.Floor(principal * growth)))
		}
	}

	total := new(big.Int).Add(t.principalMicro, accruedMicro)
	if total.Cmp(t.floorMicro) < 0 {
		total.Set(t.floorMicro)
	} else {
		t.floorMicro.Set(total)
	}

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(total, microPerUnit, frac)
	digits := frac.String()
	if len(digits) < 6 {
		digits = strings.Repeat("0", 6-len(digits)) + digits
	}

	out := Display{
		Whole:        whole.String(),
		MainFraction: digits[:t.mainDigits],
	}
	if t.extraDigits > 0 && t.significant(accruedMicro) {
		extra := digits[t.mainDigits : t.mainDigits+t.extraDigits]
		if strings.Trim(extra, "0") != "" {
			out.ExtraFraction = extra
		}
	}
	return out
}

// significant reports whether the accrued delta has reached one unit in the
// last always-shown fraction digit. Below that the extra digits would read as
// sub-cent noise dressed up as precision, so they stay hidden.
func (t *Tracker) significant(accruedMicro *big.Int) bool {
	threshold := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(6-t.mainDigits)), nil)
	return accruedMicro.Cmp(threshold) >= 0
}
