package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
	"github.com/substrate-debug-kit/offline-election/storage/testutil"
)

// putLinkedAccounts writes a legacy linked map in the given order, with
// values produced by value.
func putLinkedAccounts(state *testutil.MemoryState, m storage.MapItem, order []common.AccountID, value func(i int, e *scale.Encoder)) {
	if len(order) > 0 {
		state.Put(keys.LinkedMapHeadKey(m.Module, m.Item), order[0][:])
	}
	for i, who := range order {
		e := scale.NewEncoder()
		value(i, e)
		if i > 0 {
			e.U8(1).AccountID(order[i-1])
		} else {
			e.U8(0)
		}
		if i+1 < len(order) {
			e.U8(1).AccountID(order[i+1])
		} else {
			e.U8(0)
		}
		state.PutEncoded(m.LegacyKey(who[:]), e)
	}
}

func legacyBond(state *testutil.MemoryState, stash common.AccountID, active uint64) {
	controller := common.AccountFromUint64(2000)
	for i := 0; i < 8; i++ {
		controller[i] ^= stash[i]
	}
	state.Put(StakingBonded.LegacyKey(stash[:]), controller[:])
	ledger := Ledger{Stash: stash, Total: common.NewBalance(active), Active: common.NewBalance(active)}
	state.PutEncoded(StakingLedger.LegacyKey(controller[:]), ledger.Encode(scale.NewEncoder()))
}

func legacyStakingState() *testutil.MemoryState {
	state := testutil.NewMemoryState()
	validators := []common.AccountID{acc(2), acc(1)}
	putLinkedAccounts(state, StakingValidators, validators, func(_ int, e *scale.Encoder) { e.CompactU64(0) })
	legacyBond(state, acc(1), 100)
	legacyBond(state, acc(2), 200)

	nominators := []common.AccountID{acc(10), acc(11)}
	targets := [][]common.AccountID{{acc(1), acc(2)}, {acc(2)}}
	putLinkedAccounts(state, StakingNominators, nominators, func(i int, e *scale.Encoder) {
		n := Nominations{Targets: targets[i], SubmittedIn: 5}
		// Legacy nominations carry no suppressed flag.
		e.VecLen(len(n.Targets))
		for _, t := range n.Targets {
			e.AccountID(t)
		}
		e.U32(n.SubmittedIn)
	})
	legacyBond(state, acc(10), 50)
	legacyBond(state, acc(11), 70)

	// acc(2) was slashed after the nominations were submitted.
	spans := SlashingSpans{SpanIndex: 1, LastStart: 7, LastNonzeroSlash: 7}
	state.PutEncoded(StakingSlashingSpans.LegacyKey(accountBytes(acc(2))), spans.Encode(scale.NewEncoder()))
	state.PutEncoded(StakingValidatorCount.LegacyKey(), scale.NewEncoder().U32(3))
	return state
}

func TestLegacyStakingInput(t *testing.T) {
	ctx := context.Background()
	state := legacyStakingState()

	staking := NewStaking(state, testutil.NewTestLogger(t, "data-test")).WithLegacyStorage(true)
	in, err := staking.Input(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.AccountID{acc(2), acc(1)}, in.Candidates, "link order")
	require.Len(t, in.Voters, 4)

	first := voterOf(t, in.Voters, acc(10))
	require.Equal(t, "50", first.Stake.String())
	require.Equal(t, []common.AccountID{acc(1)}, first.Targets)
	second := voterOf(t, in.Voters, acc(11))
	require.Equal(t, "70", second.Stake.String())
	require.Empty(t, second.Targets)
	require.Equal(t, "200", voterOf(t, in.Voters, acc(2)).Stake.String())

	count, err := staking.ValidatorCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	report, err := NewStaking(state, testutil.NewTestLogger(t, "data-test")).WithLegacyStorage(true).DanglingNominations(ctx)
	require.NoError(t, err)
	require.Len(t, report.Dangling, 2)

	// The current layout sees none of it.
	current, err := NewStaking(state, testutil.NewTestLogger(t, "data-test")).Input(ctx)
	require.NoError(t, err)
	require.Empty(t, current.Candidates)
	require.Empty(t, current.Voters)
}

func TestLegacyCouncilInput(t *testing.T) {
	profile := *config.DefaultProfiles["substrate"]
	profile.CouncilVoterLayout = config.VoterLayoutTuple
	profile.LegacyStorage = true

	state := testutil.NewMemoryState()
	c := &Council{module: profile.CouncilModule}
	state.PutEncoded(c.item("Members").LegacyKey(), scale.NewEncoder().VecLen(1).AccountID(acc(1)).Balance(common.NewBalance(1)))
	state.PutEncoded(c.item("Candidates").LegacyKey(), scale.NewEncoder().VecLen(1).AccountID(acc(2)))

	voters := []common.AccountID{acc(20), acc(21)}
	votes := [][]common.AccountID{{acc(1), acc(2)}, {acc(2)}}
	putLinkedAccounts(state, c.legacyVotes(), voters, func(i int, e *scale.Encoder) {
		e.VecLen(len(votes[i]))
		for _, v := range votes[i] {
			e.AccountID(v)
		}
	})
	state.PutEncoded(c.legacyStakes().LegacyKey(accountBytes(acc(20))), scale.NewEncoder().Balance(common.NewBalance(300)))

	in, err := NewCouncil(state, &profile, testutil.NewTestLogger(t, "data-test")).Input(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.AccountID{acc(1), acc(2)}, in.Candidates)
	require.Equal(t, []Voter{
		{Who: acc(20), Stake: common.NewBalance(300), Targets: votes[0]},
		{Who: acc(21), Stake: common.Balance{}, Targets: votes[1]},
	}, in.Voters)
}

func TestLegacyIssuance(t *testing.T) {
	state := testutil.NewMemoryState()
	state.PutEncoded(BalancesTotalIssuance.LegacyKey(), scale.NewEncoder().Balance(common.NewBalance(5)))
	profile := *config.DefaultProfiles["substrate"]
	profile.LegacyStorage = true

	ectx, err := NewElectionContext(context.Background(), state, &profile)
	require.NoError(t, err)
	require.Equal(t, "5", ectx.Issuance.String())
}
