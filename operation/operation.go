package operation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind selects which protocol action an operation performs.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdraw
	KindClaim
)

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindClaim:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindClaim:
		return "claim"
	default:
		return "unknown"
	}
}

// ParseKind maps the wire representation back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "deposit":
		return KindDeposit, true
	case "withdraw":
		return KindWithdraw, true
	case "claim":
		return KindClaim, true
	default:
		return 0, false
	}
}

// State is one step of the operation lifecycle. Every state has an implicit
// failed exit back to input.
type State uint8

const (
	StateInput State = iota
	StateGasCheck
	StateGasDrip
	StateSigning
	StateSubmitting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInput:
		return "input"
	case StateGasCheck:
		return "gas_check"
	case StateGasDrip:
		return "gas_drip"
	case StateSigning:
		return "signing"
	case StateSubmitting:
		return "submitting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition is one emitted lifecycle event. Err is populated only for
// StateFailed; TxHash only once the transaction has been broadcast.
type Transition struct {
	State  State
	TxHash common.Hash
	Err    error
}

// Operation describes a single user-initiated deposit, withdrawal or claim
// as it moves through the state machine.
type Operation struct {
	ID               uuid.UUID
	Kind             Kind
	Account          common.Address
	ChainID          uint64
	AmountMicro      *big.Int
	State            State
	TxHash           common.Hash
	GasDripRequested bool
	Err              error
}

// Clone returns a deep copy of the operation.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	out := *o
	if o.AmountMicro != nil {
		out.AmountMicro = new(big.Int).Set(o.AmountMicro)
	}
	return &out
}
