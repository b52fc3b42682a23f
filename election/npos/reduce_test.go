package npos

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/substrate-debug-kit/offline-election/common"
)

func totals(staked []StakedAssignment) (map[common.AccountID]uint64, map[common.AccountID]uint64) {
	voters := map[common.AccountID]uint64{}
	targets := map[common.AccountID]uint64{}
	for _, a := range staked {
		for _, e := range a.Distribution {
			voters[a.Who] += e.Stake
			targets[e.Target] += e.Stake
		}
	}
	return voters, targets
}

// acyclic checks the voter/target graph with union-find.
func acyclic(staked []StakedAssignment) bool {
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		p, ok := parent[x]
		if !ok || p == x {
			parent[x] = x
			return x
		}
		r := find(p)
		parent[x] = r
		return r
	}
	for _, a := range staked {
		for _, e := range a.Distribution {
			v, t := find("v"+a.Who.Hex()), find("t"+e.Target.Hex())
			if v == t {
				return false
			}
			parent[v] = t
		}
	}
	return true
}

func TestReduceSquare(t *testing.T) {
	// 10 and 20 both back 1 and 2: a single 4-cycle.
	staked := []StakedAssignment{
		{Who: acc(10), Distribution: []StakedEdge{{acc(1), 5}, {acc(2), 5}}},
		{Who: acc(20), Distribution: []StakedEdge{{acc(1), 5}, {acc(2), 5}}},
	}
	voters, targets := totals(staked)
	removed := Reduce(staked)
	// Equal stakes: both edges on one side of the cycle drop to zero.
	require.Equal(t, 2, removed)
	require.True(t, acyclic(staked))
	v2, t2 := totals(staked)
	require.Equal(t, voters, v2)
	require.Equal(t, targets, t2)
}

func TestReduceDropsZeroAndMergesDuplicates(t *testing.T) {
	staked := []StakedAssignment{
		{Who: acc(10), Distribution: []StakedEdge{{acc(1), 0}, {acc(2), 3}, {acc(2), 4}}},
	}
	removed := Reduce(staked)
	require.Equal(t, 2, removed)
	require.Equal(t, []StakedEdge{{acc(2), 7}}, staked[0].Distribution)
}

func TestReduceProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numVoters := rapid.IntRange(1, 12).Draw(rt, "voters")
		numTargets := rapid.IntRange(1, 6).Draw(rt, "targets")
		staked := make([]StakedAssignment, numVoters)
		edges := 0
		for i := range staked {
			staked[i].Who = acc(uint64(100 + i))
			picked := rapid.SliceOfNDistinct(rapid.IntRange(0, numTargets-1), 1, numTargets, rapid.ID[int]).Draw(rt, "edges")
			for _, tgt := range picked {
				stake := rapid.Uint64Range(0, 1_000).Draw(rt, "stake")
				staked[i].Distribution = append(staked[i].Distribution, StakedEdge{Target: acc(uint64(tgt)), Stake: stake})
				edges++
			}
		}
		voters, targets := totals(staked)

		removed := Reduce(staked)

		after := 0
		for _, a := range staked {
			after += len(a.Distribution)
			for _, e := range a.Distribution {
				if e.Stake == 0 {
					rt.Fatalf("zero edge left for %s", a.Who)
				}
			}
		}
		if removed != edges-after {
			rt.Fatalf("reported %d removed edges, counted %d", removed, edges-after)
		}
		if !acyclic(staked) {
			rt.Fatalf("cycle left after reduction")
		}
		v2, t2 := totals(staked)
		for who, total := range voters {
			if v2[who] != total {
				rt.Fatalf("voter %s total changed from %d to %d", who, total, v2[who])
			}
		}
		for who, total := range targets {
			if t2[who] != total {
				rt.Fatalf("target %s total changed from %d to %d", who, total, t2[who])
			}
		}
	})
}

func TestBalancePreservesStake(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numTargets := rapid.IntRange(2, 5).Draw(rt, "targets")
		winners := make([]common.AccountID, numTargets)
		for i := range winners {
			winners[i] = acc(uint64(i))
		}
		staked := make([]StakedAssignment, rapid.IntRange(1, 8).Draw(rt, "voters"))
		for i := range staked {
			staked[i].Who = acc(uint64(100 + i))
			picked := rapid.SliceOfNDistinct(rapid.IntRange(0, numTargets-1), 1, numTargets, rapid.ID[int]).Draw(rt, "edges")
			for _, tgt := range picked {
				stake := rapid.Uint64Range(0, 10_000).Draw(rt, "stake")
				staked[i].Distribution = append(staked[i].Distribution, StakedEdge{Target: winners[tgt], Stake: stake})
			}
		}
		before := make([]uint64, len(staked))
		for i := range staked {
			before[i] = staked[i].Total()
		}
		supports, _ := BuildSupportMap(winners, staked)
		scoreBefore := Evaluate(supports)

		iterations := rapid.IntRange(1, 10).Draw(rt, "iterations")
		tolerance := rapid.Uint64Range(0, 100).Draw(rt, "tolerance")
		done := Balance(staked, supports, tolerance, iterations)
		if done < 1 || done > iterations {
			rt.Fatalf("ran %d of %d iterations", done, iterations)
		}
		for i := range staked {
			if staked[i].Total() != before[i] {
				rt.Fatalf("voter %d total changed from %d to %d", i, before[i], staked[i].Total())
			}
		}
		rebuilt, _ := BuildSupportMap(winners, staked)
		for _, w := range winners {
			if !rebuilt[w].Total.Eq(&supports[w].Total) {
				rt.Fatalf("support of %s drifted: %s != %s", w, rebuilt[w].Total.Dec(), supports[w].Total.Dec())
			}
		}
		scoreAfter := Evaluate(supports)
		if scoreBefore[1] != scoreAfter[1] {
			rt.Fatalf("total support changed")
		}
		if scoreAfter[0].Lt(&scoreBefore[0]) {
			rt.Fatalf("minimum support dropped from %s to %s", scoreBefore[0].Dec(), scoreAfter[0].Dec())
		}
	})
}
