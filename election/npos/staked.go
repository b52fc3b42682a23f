package npos

import (
	"github.com/holiman/uint256"
)

// RatioToStaked converts proportions into absolute stakes using each voter's
// weight. Rounding leftovers go to the last edge so that a voter's stakes
// always sum to exactly its weight.
func RatioToStaked(assignments []Assignment, accuracy Accuracy, weightOf func(Assignment) VoteWeight) []StakedAssignment {
	acc := uint256.NewInt(uint64(accuracy))
	out := make([]StakedAssignment, 0, len(assignments))
	for _, a := range assignments {
		weight := weightOf(a)
		w := uint256.NewInt(weight)
		staked := StakedAssignment{Who: a.Who, Distribution: make([]StakedEdge, len(a.Distribution))}
		var sum VoteWeight
		for i, e := range a.Distribution {
			stake := new(uint256.Int).Mul(uint256.NewInt(e.Parts), w)
			stake.Div(stake, acc)
			staked.Distribution[i] = StakedEdge{Target: e.Target, Stake: stake.Uint64()}
			sum += stake.Uint64()
		}
		if n := len(staked.Distribution); n > 0 && sum < weight {
			staked.Distribution[n-1].Stake += weight - sum
		}
		out = append(out, staked)
	}
	return out
}

// StakedToRatio converts absolute stakes back into proportions of accuracy.
func StakedToRatio(staked []StakedAssignment, accuracy Accuracy) []Assignment {
	acc := uint256.NewInt(uint64(accuracy))
	out := make([]Assignment, 0, len(staked))
	for _, s := range staked {
		total := uint256.NewInt(s.Total())
		a := Assignment{Who: s.Who, Distribution: make([]Edge, len(s.Distribution))}
		for i, e := range s.Distribution {
			var parts uint64
			if !total.IsZero() {
				p := new(uint256.Int).Mul(uint256.NewInt(e.Stake), acc)
				parts = p.Div(p, total).Uint64()
			}
			a.Distribution[i] = Edge{Target: e.Target, Parts: parts}
		}
		normalize(a.Distribution, accuracy)
		out = append(out, a)
	}
	return out
}
