package npos

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// Balance equalizes winner supports by letting every voter redistribute its
// stake among its targets so that the supports it touches end up as level
// as possible. It runs until no voter can improve by more than tolerance or
// iterations rounds have passed, and returns the number of rounds run.
// Both staked and supports are updated in place; each voter's total stake is
// preserved exactly.
func Balance(staked []StakedAssignment, supports SupportMap, tolerance uint64, iterations int) int {
	if iterations == 0 {
		return 0
	}
	tol := uint256.NewInt(tolerance)
	done := 0
	for {
		maxDiff := new(uint256.Int)
		for i := range staked {
			diff := balanceVoter(&staked[i], supports, tol)
			if diff.Gt(maxDiff) {
				maxDiff = diff
			}
		}
		done++
		if !maxDiff.Gt(tol) || done >= iterations {
			return done
		}
	}
}

// balanceVoter levels the supports of a single voter's targets. It returns
// the spread between the most and least backed targets before the change.
// Voters with an edge to a non-winner are left untouched.
func balanceVoter(a *StakedAssignment, supports SupportMap, tolerance *uint256.Int) *uint256.Int {
	edges := a.Distribution
	if len(edges) <= 1 {
		return new(uint256.Int)
	}
	targets := make([]*Support, len(edges))
	for i, e := range edges {
		s, ok := supports[e.Target]
		if !ok {
			return new(uint256.Int)
		}
		targets[i] = s
	}
	budget := a.Total()

	var maxBacked, minBacked *uint256.Int
	for i, s := range targets {
		if minBacked == nil || s.Total.Lt(minBacked) {
			minBacked = &s.Total
		}
		if edges[i].Stake > 0 && (maxBacked == nil || s.Total.Gt(maxBacked)) {
			maxBacked = &s.Total
		}
	}
	var difference *uint256.Int
	if maxBacked != nil {
		difference = satSub(maxBacked, minBacked)
		if difference.Lt(tolerance) {
			return difference
		}
	} else {
		difference = uint256.NewInt(budget)
	}

	for i, s := range targets {
		s.Total.Sub(&s.Total, uint256.NewInt(edges[i].Stake))
		s.Voters = removeBacking(s.Voters, a.Who)
		edges[i].Stake = 0
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return supports[edges[i].Target].Total.Lt(&supports[edges[j].Target].Total)
	})

	// Raise the least backed targets to a common level. A target joins the
	// level only if the budget can lift every lower target up to it.
	b := uint256.NewInt(budget)
	cumulative := new(uint256.Int)
	split := len(edges)
	for idx, e := range edges {
		total := &supports[e.Target].Total
		needed, overflow := new(uint256.Int).MulOverflow(total, uint256.NewInt(uint64(idx)))
		if overflow || satSub(needed, cumulative).Gt(b) {
			split = idx
			break
		}
		cumulative.Add(cumulative, total)
	}

	level := new(uint256.Int).Add(b, cumulative)
	level.Div(level, uint256.NewInt(uint64(split)))
	var assigned VoteWeight
	for i := range edges[:split] {
		edges[i].Stake = satSub(level, &supports[edges[i].Target].Total).Uint64()
		assigned += edges[i].Stake
	}
	// Flooring the level leaves less than one unit per edge unassigned.
	for i := 0; assigned < budget; i = (i + 1) % split {
		edges[i].Stake++
		assigned++
	}
	for _, e := range edges {
		s := supports[e.Target]
		s.Total.Add(&s.Total, uint256.NewInt(e.Stake))
		s.Voters = append(s.Voters, Backing{Who: a.Who, Stake: e.Stake})
	}
	return difference
}

func removeBacking(voters []Backing, who common.AccountID) []Backing {
	out := voters[:0]
	for _, b := range voters {
		if b.Who != who {
			out = append(out, b)
		}
	}
	return out
}
