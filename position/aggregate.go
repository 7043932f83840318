package position

import "math/big"

// Sample is one chain's contribution to the aggregate: a principal (nil when
// the principal is unavailable) and the APY observed alongside it.
type Sample struct {
	PrincipalMicro *big.Int
	APYBasisPoints uint64
}

// Aggregate is the derived multi-chain total. It is recomputed on every read
// and never persisted.
type Aggregate struct {
	// TotalPrincipalMicro sums principal across all known chains.
	TotalPrincipalMicro *big.Int
	// WeightedAPYBasisPoints is the principal-weighted mean of per-chain
	// APYs, or the maximum known APY when no principal exists yet.
	WeightedAPYBasisPoints uint64
	// KnownChains counts the chains that contributed a sample.
	KnownChains int
	// PendingChains counts entries under an optimistic invalidation whose
	// principal is therefore excluded from the total.
	PendingChains int
}

// Combine folds per-chain samples into an aggregate. Chains whose balance
// query has never succeeded must not appear in samples at all: absence keeps
// them out of both the principal sum and the APY weighting rather than
// understating the position as zero.
//
// With zero total principal the weighted APY falls back to the maximum
// sampled APY, supporting projected-earnings previews before any deposit
// exists. Weighting uses current spot rates; the division happens once, at
// the end, in integer space.
func Combine(samples []Sample) Aggregate {
	total := big.NewInt(0)
	weighted := big.NewInt(0)
	maxAPY := uint64(0)
	known := 0
	for _, sample := range samples {
		known++
		if sample.APYBasisPoints > maxAPY {
			maxAPY = sample.APYBasisPoints
		}
		if sample.PrincipalMicro == nil || sample.PrincipalMicro.Sign() <= 0 {
			continue
		}
		total.Add(total, sample.PrincipalMicro)
		term := new(big.Int).SetUint64(sample.APYBasisPoints)
		term.Mul(term, sample.PrincipalMicro)
		weighted.Add(weighted, term)
	}

	agg := Aggregate{TotalPrincipalMicro: total, KnownChains: known}
	if total.Sign() == 0 {
		agg.WeightedAPYBasisPoints = maxAPY
		return agg
	}
	weighted.Quo(weighted, total)
	if !weighted.IsUint64() {
		// A weighted mean can never exceed the largest input; anything else
		// indicates corrupt samples, so fall back to the maximum observed rate.
		agg.WeightedAPYBasisPoints = maxAPY
		return agg
	}
	agg.WeightedAPYBasisPoints = weighted.Uint64()
	return agg
}
