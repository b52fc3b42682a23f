package npos

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
)

func acc(v uint64) common.AccountID {
	return common.AccountFromUint64(v)
}

func accs(vs ...uint64) []common.AccountID {
	out := make([]common.AccountID, len(vs))
	for i, v := range vs {
		out[i] = acc(v)
	}
	return out
}

// Three candidates, three voters, two seats.
func triangle() ([]common.AccountID, []Voter) {
	return accs(1, 2, 3), []Voter{
		{Who: acc(10), Stake: 10, Targets: accs(1, 2)},
		{Who: acc(20), Stake: 20, Targets: accs(1, 3)},
		{Who: acc(30), Stake: 30, Targets: accs(2, 3)},
	}
}

func weightsOf(voters []Voter) func(Assignment) VoteWeight {
	w := map[common.AccountID]VoteWeight{}
	for _, v := range voters {
		w[v.Who] = v.Stake
	}
	return func(a Assignment) VoteWeight { return w[a.Who] }
}

func stakeOf(s StakedAssignment, target common.AccountID) VoteWeight {
	for _, e := range s.Distribution {
		if e.Target == target {
			return e.Stake
		}
	}
	return 0
}

func requireSupport(t *testing.T, supports SupportMap, who common.AccountID, total uint64, voters ...Backing) {
	t.Helper()
	s, ok := supports[who]
	require.True(t, ok, "no support for %s", who)
	require.Equal(t, total, s.Total.Uint64())
	if len(voters) > 0 {
		require.Equal(t, voters, s.Voters)
	}
}

func solveTriangle(t *testing.T, solver Solver) ([]Winner, []StakedAssignment, SupportMap) {
	candidates, voters := triangle()
	result, err := solver.Solve(2, 0, candidates, voters, Perbill)
	require.NoError(t, err)
	staked := RatioToStaked(result.Assignments, result.Accuracy, weightsOf(voters))
	supports, skipped := BuildSupportMap(result.WinnerIDs(), staked)
	require.Zero(t, skipped)
	return result.Winners, staked, supports
}

func TestSeqPhragmenTriangle(t *testing.T) {
	for _, solver := range []Solver{SeqPhragmen{}, FloatPhragmen{}} {
		t.Run(solver.Name(), func(t *testing.T) {
			winners, staked, supports := solveTriangle(t, solver)

			require.Len(t, winners, 2)
			require.Equal(t, acc(3), winners[0].Who)
			require.EqualValues(t, 50, winners[0].Approval.Uint64())
			require.Equal(t, acc(2), winners[1].Who)
			require.EqualValues(t, 40, winners[1].Approval.Uint64())

			require.Len(t, staked, 3)
			require.EqualValues(t, 10, stakeOf(staked[0], acc(2)))
			require.EqualValues(t, 20, stakeOf(staked[1], acc(3)))
			require.EqualValues(t, 15, stakeOf(staked[2], acc(2)))
			require.EqualValues(t, 15, stakeOf(staked[2], acc(3)))

			requireSupport(t, supports, acc(2), 25)
			requireSupport(t, supports, acc(3), 35)
		})
	}
}

func TestBalanceTriangle(t *testing.T) {
	_, staked, supports := solveTriangle(t, SeqPhragmen{})

	done := Balance(staked, supports, 0, 2)
	require.Equal(t, 2, done)
	requireSupport(t, supports, acc(2), 30, Backing{acc(10), 10}, Backing{acc(30), 20})
	requireSupport(t, supports, acc(3), 30, Backing{acc(20), 20}, Backing{acc(30), 10})
	require.EqualValues(t, 30, staked[2].Total())

	// The balanced supports agree with the balanced assignments.
	rebuilt, _ := BuildSupportMap(accs(2, 3), staked)
	for who, s := range supports {
		require.Equal(t, s.Total, rebuilt[who].Total)
	}
}

func TestBalanceStopsAtTolerance(t *testing.T) {
	_, staked, supports := solveTriangle(t, SeqPhragmen{})
	// The spread of voter 30 is 10, below tolerance: nothing moves.
	done := Balance(staked, supports, 11, 5)
	require.Equal(t, 1, done)
	requireSupport(t, supports, acc(2), 25)
	requireSupport(t, supports, acc(3), 35)

	require.Zero(t, Balance(staked, supports, 0, 0))
}

func TestSolveEdgeCases(t *testing.T) {
	candidates, voters := triangle()

	_, err := SeqPhragmen{}.Solve(2, 4, candidates, voters, Perbill)
	require.ErrorIs(t, err, ErrTooFewWinners)
	_, err = FloatPhragmen{}.Solve(2, 4, candidates, voters, Perbill)
	require.ErrorIs(t, err, ErrTooFewWinners)

	// Candidates without approval are never elected, and unknown targets are
	// ignored.
	voters = append(voters, Voter{Who: acc(40), Stake: 5, Targets: accs(99)})
	result, err := SeqPhragmen{}.Solve(10, 0, append(candidates, acc(4)), voters, Perbill)
	require.NoError(t, err)
	require.Len(t, result.Winners, 3)
	require.NotContains(t, result.WinnerIDs(), acc(4))
	require.Len(t, result.Assignments, 3)

	for _, a := range result.Assignments {
		var sum uint64
		for _, e := range a.Distribution {
			sum += e.Parts
		}
		require.EqualValues(t, Perbill, sum)
	}
}

func TestRatioToStakedRemainder(t *testing.T) {
	assignments := []Assignment{{
		Who: acc(1),
		Distribution: []Edge{
			{Target: acc(2), Parts: 333_333_333},
			{Target: acc(3), Parts: 333_333_333},
			{Target: acc(4), Parts: 333_333_334},
		},
	}}
	staked := RatioToStaked(assignments, Perbill, func(Assignment) VoteWeight { return 100 })
	require.Equal(t, []StakedEdge{{acc(2), 33}, {acc(3), 33}, {acc(4), 34}}, staked[0].Distribution)

	back := StakedToRatio(staked, PerU16)
	var sum uint64
	for _, e := range back[0].Distribution {
		sum += e.Parts
	}
	require.EqualValues(t, PerU16, sum)
}

func TestScore(t *testing.T) {
	_, _, supports := solveTriangle(t, SeqPhragmen{})
	score := Evaluate(supports)
	require.EqualValues(t, 25, score[0].Uint64())
	require.EqualValues(t, 60, score[1].Uint64())
	require.EqualValues(t, 25*25+35*35, score[2].Uint64())

	better := score
	better[0] = *uint256.NewInt(26)
	require.True(t, better.IsBetter(score))
	require.False(t, score.IsBetter(better))

	better = score
	better[2] = *uint256.NewInt(1)
	require.True(t, better.IsBetter(score))
	require.False(t, score.IsBetter(score))

	require.Equal(t, ElectionScore{}, Evaluate(SupportMap{}))
}

func TestBuildSupportMapCountsStrayEdges(t *testing.T) {
	staked := []StakedAssignment{{Who: acc(1), Distribution: []StakedEdge{{acc(2), 5}, {acc(9), 5}}}}
	supports, skipped := BuildSupportMap(accs(2), staked)
	require.Equal(t, 1, skipped)
	requireSupport(t, supports, acc(2), 5)
	require.EqualValues(t, 5, supports[acc(2)].SelfStake(acc(1)))
}
