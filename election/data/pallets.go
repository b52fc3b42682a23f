package data

import (
	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// Staking and balances storage items.
var (
	StakingValidators     = storage.MapItem{Module: "Staking", Item: "Validators", Hasher: keys.Twox64Concat}
	StakingNominators     = storage.MapItem{Module: "Staking", Item: "Nominators", Hasher: keys.Twox64Concat}
	StakingBonded         = storage.MapItem{Module: "Staking", Item: "Bonded", Hasher: keys.Twox64Concat}
	StakingLedger         = storage.MapItem{Module: "Staking", Item: "Ledger", Hasher: keys.Blake2_128Concat}
	StakingSlashingSpans  = storage.MapItem{Module: "Staking", Item: "SlashingSpans", Hasher: keys.Twox64Concat}
	StakingErasStakers    = storage.DoubleMapItem{Module: "Staking", Item: "ErasStakers", Hasher1: keys.Twox64Concat, Hasher2: keys.Twox64Concat}
	StakingValidatorCount = storage.ValueItem{Module: "Staking", Item: "ValidatorCount"}
	StakingCurrentEra     = storage.ValueItem{Module: "Staking", Item: "CurrentEra"}
	StakingActiveEra      = storage.ValueItem{Module: "Staking", Item: "ActiveEra"}
	SessionValidators     = storage.ValueItem{Module: "Session", Item: "Validators"}
	BalancesTotalIssuance = storage.ValueItem{Module: "Balances", Item: "TotalIssuance"}

	// The chain's own election snapshot, present while an election window is open.
	StakingSnapshotValidators = storage.ValueItem{Module: "Staking", Item: "SnapshotValidators"}
	StakingSnapshotNominators = storage.ValueItem{Module: "Staking", Item: "SnapshotNominators"}
)

// DefaultValidatorCount applies when Staking.ValidatorCount is not set.
const DefaultValidatorCount = 50

// Nominations is a nominator's vote.
type Nominations struct {
	Targets     []common.AccountID
	SubmittedIn uint32
	Suppressed  bool
}

// DecodeNominations accepts runtimes with and without the suppressed flag.
func DecodeNominations(d *scale.Decoder) (Nominations, error) {
	var (
		n   Nominations
		err error
	)
	if n.Targets, err = scale.DecodeAccountIDs(d); err != nil {
		return n, err
	}
	if n.SubmittedIn, err = d.U32(); err != nil {
		return n, err
	}
	if d.Remaining() > 0 {
		n.Suppressed, err = d.Bool()
	}
	return n, err
}

func (n Nominations) Encode(e *scale.Encoder) *scale.Encoder {
	e.VecLen(len(n.Targets))
	for _, t := range n.Targets {
		e.AccountID(t)
	}
	return e.U32(n.SubmittedIn).Bool(n.Suppressed)
}

// SlashingSpans tracks the slashing history of a stash.
type SlashingSpans struct {
	SpanIndex        uint32
	LastStart        uint32
	LastNonzeroSlash uint32
	Prior            []uint32
}

func DecodeSlashingSpans(d *scale.Decoder) (SlashingSpans, error) {
	var (
		s   SlashingSpans
		err error
	)
	if s.SpanIndex, err = d.U32(); err != nil {
		return s, err
	}
	if s.LastStart, err = d.U32(); err != nil {
		return s, err
	}
	if s.LastNonzeroSlash, err = d.U32(); err != nil {
		return s, err
	}
	s.Prior, err = scale.Vec(d, scale.DecodeU32)
	return s, err
}

func (s SlashingSpans) Encode(e *scale.Encoder) *scale.Encoder {
	e.U32(s.SpanIndex).U32(s.LastStart).U32(s.LastNonzeroSlash).VecLen(len(s.Prior))
	for _, p := range s.Prior {
		e.U32(p)
	}
	return e
}

// DecodeActiveEraIndex reads the index of an ActiveEraInfo, ignoring the
// optional start timestamp.
func DecodeActiveEraIndex(d *scale.Decoder) (uint32, error) {
	index, err := d.U32()
	if err != nil {
		return 0, err
	}
	_, err = d.Option(func(d *scale.Decoder) error {
		_, err := d.U64()
		return err
	})
	return index, err
}

type UnlockChunk struct {
	Value common.Balance
	Era   uint64
}

// Ledger is the bonded balance of a controller.
type Ledger struct {
	Stash          common.AccountID
	Total          common.Balance
	Active         common.Balance
	Unlocking      []UnlockChunk
	ClaimedRewards []uint32
}

// DecodeLedger accepts ledgers with and without claimed rewards.
func DecodeLedger(d *scale.Decoder) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	if l.Stash, err = d.AccountID(); err != nil {
		return l, err
	}
	if l.Total, err = d.CompactBalance(); err != nil {
		return l, err
	}
	if l.Active, err = d.CompactBalance(); err != nil {
		return l, err
	}
	l.Unlocking, err = scale.Vec(d, func(d *scale.Decoder) (UnlockChunk, error) {
		var (
			c   UnlockChunk
			err error
		)
		if c.Value, err = d.CompactBalance(); err != nil {
			return c, err
		}
		c.Era, err = d.CompactU64()
		return c, err
	})
	if err != nil {
		return l, err
	}
	if d.Remaining() > 0 {
		l.ClaimedRewards, err = scale.Vec(d, scale.DecodeU32)
	}
	return l, err
}

func (l Ledger) Encode(e *scale.Encoder) *scale.Encoder {
	e.AccountID(l.Stash).CompactBalance(l.Total).CompactBalance(l.Active).VecLen(len(l.Unlocking))
	for _, c := range l.Unlocking {
		e.CompactBalance(c.Value).CompactU64(c.Era)
	}
	e.VecLen(len(l.ClaimedRewards))
	for _, r := range l.ClaimedRewards {
		e.U32(r)
	}
	return e
}

type IndividualExposure struct {
	Who   common.AccountID
	Value common.Balance
}

// Exposure is the stake backing a validator in one era.
type Exposure struct {
	Total  common.Balance
	Own    common.Balance
	Others []IndividualExposure
}

func DecodeExposure(d *scale.Decoder) (Exposure, error) {
	var (
		x   Exposure
		err error
	)
	if x.Total, err = d.CompactBalance(); err != nil {
		return x, err
	}
	if x.Own, err = d.CompactBalance(); err != nil {
		return x, err
	}
	x.Others, err = scale.Vec(d, func(d *scale.Decoder) (IndividualExposure, error) {
		var (
			i   IndividualExposure
			err error
		)
		if i.Who, err = d.AccountID(); err != nil {
			return i, err
		}
		i.Value, err = d.CompactBalance()
		return i, err
	})
	return x, err
}

func (x Exposure) Encode(e *scale.Encoder) *scale.Encoder {
	e.CompactBalance(x.Total).CompactBalance(x.Own).VecLen(len(x.Others))
	for _, o := range x.Others {
		e.AccountID(o.Who).CompactBalance(o.Value)
	}
	return e
}

// OthersTotal sums the nominator part of the exposure.
func (x Exposure) OthersTotal() common.Balance {
	var sum common.Balance
	for _, o := range x.Others {
		sum.Add(&sum.Int, &o.Value.Int)
	}
	return sum
}

// CouncilVote is a council voter's ballot, in either storage layout.
type CouncilVote struct {
	Stake   common.Balance
	Votes   []common.AccountID
	Deposit common.Balance
}

func decodeCouncilVoteTuple(d *scale.Decoder) (CouncilVote, error) {
	var (
		v   CouncilVote
		err error
	)
	if v.Stake, err = d.Balance(); err != nil {
		return v, err
	}
	v.Votes, err = scale.DecodeAccountIDs(d)
	return v, err
}

func decodeCouncilVoteStruct(d *scale.Decoder) (CouncilVote, error) {
	var (
		v   CouncilVote
		err error
	)
	if v.Votes, err = scale.DecodeAccountIDs(d); err != nil {
		return v, err
	}
	if v.Stake, err = d.Balance(); err != nil {
		return v, err
	}
	v.Deposit, err = d.Balance()
	return v, err
}

// membersDecoder decodes the council members and runners-up lists:
// Vec<(AccountId, Balance)> in the tuple layout, Vec<SeatHolder> with a
// trailing deposit in the struct layout.
func membersDecoder(layout string) storage.Decoder[[]common.AccountID] {
	return func(d *scale.Decoder) ([]common.AccountID, error) {
		return scale.Vec(d, func(d *scale.Decoder) (common.AccountID, error) {
			who, err := d.AccountID()
			if err != nil {
				return who, err
			}
			if _, err = d.Balance(); err != nil {
				return who, err
			}
			if layout == config.VoterLayoutStruct {
				_, err = d.Balance()
			}
			return who, err
		})
	}
}

func voteDecoder(layout string) storage.Decoder[CouncilVote] {
	if layout == config.VoterLayoutTuple {
		return decodeCouncilVoteTuple
	}
	return decodeCouncilVoteStruct
}
