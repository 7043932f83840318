package position

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies one cached lending position: the owning account on one chain.
type Key struct {
	Account common.Address
	ChainID uint64
}

// ChainPosition is the authoritative view of a lending position on a single
// chain. Principal is denominated in micro-units and expressed as a big
// integer to match on-chain precision; it is never negative.
type ChainPosition struct {
	// ChainID identifies the chain the position lives on.
	ChainID uint64
	// PrincipalMicro is the deposited amount excluding accrued yield.
	PrincipalMicro *big.Int
	// APYBasisPoints is the protocol supply rate at observation time.
	APYBasisPoints uint64
	// ObservedAt records when the source reported this snapshot. The store
	// uses it for the recency check on writes.
	ObservedAt time.Time
}

// Clone returns a deep copy of the position.
func (p *ChainPosition) Clone() *ChainPosition {
	if p == nil {
		return nil
	}
	out := *p
	if p.PrincipalMicro != nil {
		out.PrincipalMicro = new(big.Int).Set(p.PrincipalMicro)
	} else {
		out.PrincipalMicro = big.NewInt(0)
	}
	return &out
}

// ClaimState tracks the reward-claim cadence for an account.
type ClaimState struct {
	// LastClaimedDay is the protocol day index of the most recent claim.
	LastClaimedDay uint64
	// NextClaimAt is when the protocol will accept the next claim.
	NextClaimAt time.Time
	// ObservedAt records when the source reported this state.
	ObservedAt time.Time
}
