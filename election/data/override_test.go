package data

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
)

func baseInput() *Input {
	return &Input{
		Candidates: []common.AccountID{acc(1), acc(2)},
		Voters: []Voter{
			{Who: acc(10), Stake: common.NewBalance(10), Targets: []common.AccountID{acc(1)}},
			{Who: acc(20), Stake: common.NewBalance(20), Targets: []common.AccountID{acc(2)}},
			{Who: acc(30), Stake: common.NewBalance(30), Targets: []common.AccountID{acc(1), acc(2)}},
		},
	}
}

func TestOverrideAddCandidateRemoveVoter(t *testing.T) {
	in := baseInput()
	o := &Override{
		CandidatesAdd: []common.AccountID{acc(3)},
		VotersRemove:  []common.AccountID{acc(20)},
	}
	require.NoError(t, o.Apply(in))

	want := baseInput()
	require.Equal(t, append(want.Candidates, acc(3)), in.Candidates)
	require.Equal(t, []Voter{want.Voters[0], want.Voters[2]}, in.Voters)
}

func TestOverrideOrdering(t *testing.T) {
	in := baseInput()
	o := &Override{
		// Existing voter: replaced, not merged.
		VotersAdd: []Voter{
			{Who: acc(10), Stake: common.NewBalance(99), Targets: []common.AccountID{acc(2)}},
			{Who: acc(40), Stake: common.NewBalance(40), Targets: []common.AccountID{acc(1)}},
		},
		VotersMutate: []Voter{{Who: acc(30), Targets: []common.AccountID{acc(3)}}},
		// Added then removed in the same document: removed.
		VotersRemove:     []common.AccountID{acc(40)},
		CandidatesAdd:    []common.AccountID{acc(3), acc(1)},
		CandidatesRemove: []common.AccountID{acc(2)},
	}
	require.NoError(t, o.Apply(in))

	require.Equal(t, []common.AccountID{acc(1), acc(3)}, in.Candidates)
	require.Len(t, in.Voters, 3)
	require.Equal(t, Voter{Who: acc(10), Stake: common.NewBalance(99), Targets: []common.AccountID{acc(2)}}, in.Voters[0])
	require.Equal(t, "30", in.Voters[2].Stake.String())
	require.Equal(t, []common.AccountID{acc(3)}, in.Voters[2].Targets)

	bad := &Override{VotersMutate: []Voter{{Who: acc(77)}}}
	require.ErrorContains(t, bad.Apply(baseInput()), "unknown voter")
}

func TestParseOverride(t *testing.T) {
	alice := "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	yamlDoc := []byte(`
voters_add:
  - who: ` + alice + `
    stake: "1000000000000"
    targets: ["0x0100000000000000000000000000000000000000000000000000000000000000"]
voters_remove: ["0x0a00000000000000000000000000000000000000000000000000000000000000"]
candidates_add: ["0x0300000000000000000000000000000000000000000000000000000000000000"]
`)
	o, err := ParseOverride(yamlDoc, "yaml")
	require.NoError(t, err)
	require.Len(t, o.VotersAdd, 1)
	require.Equal(t, common.MustParseAccountID(alice), o.VotersAdd[0].Who)
	require.Equal(t, "1000000000000", o.VotersAdd[0].Stake.String())
	require.Equal(t, []common.AccountID{acc(1)}, o.VotersAdd[0].Targets)
	require.Equal(t, []common.AccountID{acc(10)}, o.VotersRemove)
	require.Equal(t, []common.AccountID{acc(3)}, o.CandidatesAdd)

	jsonDoc := []byte(`{"candidates_remove": ["0x0200000000000000000000000000000000000000000000000000000000000000"]}`)
	o, err = ParseOverride(jsonDoc, "json")
	require.NoError(t, err)
	require.Equal(t, []common.AccountID{acc(2)}, o.CandidatesRemove)

	_, err = ParseOverride([]byte(`voters_add: [{who: "`+alice+`"}]`), "yaml")
	require.ErrorContains(t, err, "stake is required")
	_, err = ParseOverride([]byte(`candidates_add: ["not-an-account"]`), "yaml")
	require.Error(t, err)
}
