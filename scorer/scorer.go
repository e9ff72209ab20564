// Package scorer computes the market-concentration metrics used to modulate
// an auction's clearing-rate parameter: a fixed-point Herfindahl-Hirschman
// Index over bid amounts, and the bounded rate-adjustment derived from it.
package scorer

import (
	"math/big"

	"github.com/clearmarket/sealbid-node/types"
	"github.com/holiman/uint256"
)

const (
	// HHIMax is the maximum HHI value: a single participant holding the
	// whole market, in basis points squared scale
	HHIMax = 10000
	// ImprovementMin and ImprovementMax bound the rate adjustment
	ImprovementMin = -30
	ImprovementMax = 30

	// concentration thresholds of the improvement policy, in HHI scale
	hhiCompetitive  = 1500
	hhiConcentrated = 2500

	shareScale = 10000
)

// ComputeHHI returns the Herfindahl-Hirschman Index of the given bid
// amounts, scaled to the range [0, 10000]: a single participant scores
// 10000, n equal participants score 10000/n. Shares are computed in basis
// points with truncating integer division. An empty or zero-total input
// returns 0.
func ComputeHHI(amounts []*uint256.Int) int {
	if len(amounts) == 0 {
		return 0
	}

	// amounts are unsigned 256-bit values, sum with big.Int to avoid
	// overflow
	total := new(big.Int)
	for _, a := range amounts {
		if a == nil {
			continue
		}
		total.Add(total, a.ToBig())
	}
	if total.Sign() == 0 {
		return 0
	}

	hhi := 0
	scale := big.NewInt(shareScale)
	for _, a := range amounts {
		if a == nil {
			continue
		}
		share := new(big.Int).Mul(a.ToBig(), scale)
		share.Quo(share, total)
		s := share.Int64() // share is at most 10000
		hhi += int(s * s / shareScale)
	}

	if hhi < 0 {
		return 0
	}
	if hhi > HHIMax {
		return HHIMax
	}
	return hhi
}

// ScoreImprovement returns the clearing-rate adjustment for the given
// bidding pattern and concentration metrics, clamped to [-30, 30]. The
// pattern classification is supplied by the caller; the policy applies in
// order, first match wins.
func ScoreImprovement(pattern types.Pattern, hhi, distinctAmounts,
	distinctPrices, bidCount int) int {
	var improvement int
	switch pattern {
	case types.PatternMonopoly:
		improvement = -25
	case types.PatternCompetitive:
		switch {
		case bidCount >= 4 && hhi < hhiCompetitive && distinctAmounts >= 3:
			improvement = 25
		case bidCount >= 4 && hhi < hhiConcentrated && distinctAmounts >= 2:
			improvement = 15
		default:
			improvement = 5
		}
	case types.PatternCrossChain:
		improvement = 15
	default: // NEUTRAL
		switch {
		case hhi > hhiConcentrated:
			improvement = -15
		case hhi < hhiCompetitive:
			improvement = 15
		default:
			improvement = 0
		}
	}

	if improvement < ImprovementMin {
		return ImprovementMin
	}
	if improvement > ImprovementMax {
		return ImprovementMax
	}
	return improvement
}

// CountDistinct returns the number of distinct values in the given slice
func CountDistinct(values []*uint256.Int) int {
	seen := make(map[[32]byte]bool, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[v.Bytes32()] = true
	}
	return len(seen)
}
