package operation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInFlight rejects a second operation while one is being signed or
	// submitted for the same account. The attempt is refused up front, not
	// queued.
	ErrInFlight = errors.New("operation: another operation is in flight")
	// ErrWalletLocked reports that the signing collaborator refused to hand
	// out a signature. This is user-actionable, not a system failure: the
	// wallet needs to be unlocked through the external flow.
	ErrWalletLocked = errors.New("operation: wallet locked")
)

// ValidationError reports unusable user input. It keeps the state machine in
// the input state and is never surfaced as a system failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "operation: invalid input: " + e.Reason
}

// ProtocolError carries an opaque failure message reported by the chain or
// protocol collaborator. The core cannot interpret protocol-specific reasons,
// so the message is surfaced verbatim.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "operation: protocol rejected transaction: " + e.Message
}

// RateLimitedError reports that the gas faucet refused a drip until
// NextAvailableAt. User-facing text carries a human wait duration, never the
// raw timestamp.
type RateLimitedError struct {
	NextAvailableAt time.Time
}

func (e *RateLimitedError) Error() string {
	return "operation: gas faucet rate limited, available again in " + e.Wait(time.Now())
}

// Wait renders the remaining wait as a coarse human-readable duration,
// rounded up so users never retry too early.
func (e *RateLimitedError) Wait(now time.Time) string {
	remaining := e.NextAvailableAt.Sub(now)
	if remaining <= 0 {
		return "a moment"
	}
	switch {
	case remaining >= 48*time.Hour:
		return plural(int((remaining+24*time.Hour-1)/(24*time.Hour)), "day")
	case remaining >= time.Hour:
		return plural(int((remaining+time.Hour-1)/time.Hour), "hour")
	case remaining >= time.Minute:
		return plural(int((remaining+time.Minute-1)/time.Minute), "minute")
	default:
		return "less than a minute"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
