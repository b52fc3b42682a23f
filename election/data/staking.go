package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// ErrNoLedger is returned when a staker has no bonded ledger.
var ErrNoLedger = errors.New("stash has no ledger")

// Voter is an election input denominated in chain balances.
type Voter struct {
	Who     common.AccountID
	Stake   common.Balance
	Targets []common.AccountID
}

// Input is what an election runs on.
type Input struct {
	Candidates []common.AccountID
	Voters     []Voter
}

// Staking reads the staking election input from chain state. Reads are
// memoized, so a Staking is meant for a single run.
type Staking struct {
	r      storage.Reader
	logger *log.Logger
	keys   keyspace

	spans  map[common.AccountID]*SlashingSpans
	stakes map[common.AccountID]common.Balance
}

func NewStaking(r storage.Reader, logger *log.Logger) *Staking {
	return &Staking{
		r:      r,
		logger: logger.WithModule("staking"),
		spans:  map[common.AccountID]*SlashingSpans{},
		stakes: map[common.AccountID]common.Balance{},
	}
}

// WithLegacyStorage switches to linked-map enumeration and legacy keys, for
// runtimes with metadata v8 or older.
func (s *Staking) WithLegacyStorage(legacy bool) *Staking {
	s.keys = keyspace{legacy: legacy}
	return s
}

// tolerateDecodeErrors logs undecodable map entries and drops them. Any
// other error is returned.
func tolerateDecodeErrors(logger *log.Logger, item fmt.Stringer, err error) error {
	var merr *multierror.Error
	if err == nil || !errors.As(err, &merr) {
		return err
	}
	for _, e := range merr.Errors {
		var decodeErr *storage.DecodeError
		if !errors.As(e, &decodeErr) {
			return err
		}
		logger.Debug("skipping undecodable entry", "item", item, "key", decodeErr.Key, "err", decodeErr.Err)
	}
	logger.Warn("skipped undecodable entries", "item", item, "count", len(merr.Errors))
	return nil
}

// Candidates lists validator stashes in storage order.
func (s *Staking) Candidates(ctx context.Context) ([]common.AccountID, error) {
	if s.keys.legacy {
		entries, err := linkedAccountMap(ctx, s.r, StakingValidators, decodeLegacyValidatorPrefs)
		if err != nil {
			return nil, err
		}
		candidates := make([]common.AccountID, len(entries))
		for i, e := range entries {
			candidates[i] = e.Key
		}
		return candidates, nil
	}
	candidates, err := storage.MapKeys(ctx, s.r, StakingValidators, scale.DecodeAccountID)
	if err := tolerateDecodeErrors(s.logger, StakingValidators, err); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Nominations lists nominators and their raw votes in storage order.
func (s *Staking) Nominations(ctx context.Context) ([]storage.MapEntry[common.AccountID, Nominations], error) {
	if s.keys.legacy {
		return linkedAccountMap(ctx, s.r, StakingNominators, DecodeLegacyNominations)
	}
	entries, err := storage.EnumerateMap(ctx, s.r, StakingNominators, scale.DecodeAccountID, DecodeNominations)
	if err := tolerateDecodeErrors(s.logger, StakingNominators, err); err != nil {
		return nil, err
	}
	return entries, nil
}

// SlashingSpansOf returns nil if the stash was never slashed.
func (s *Staking) SlashingSpansOf(ctx context.Context, stash common.AccountID) (*SlashingSpans, error) {
	if spans, ok := s.spans[stash]; ok {
		return spans, nil
	}
	spans, found, err := storage.Read(ctx, s.r, s.keys.entry(StakingSlashingSpans, stash[:]), DecodeSlashingSpans)
	if err != nil {
		return nil, err
	}
	var out *SlashingSpans
	if found {
		out = &spans
	}
	s.spans[stash] = out
	return out, nil
}

// Effective reports whether a vote submitted in era submittedIn for target
// still counts: the target must not have been slashed after the vote.
func Effective(spans *SlashingSpans, submittedIn uint32) bool {
	return spans == nil || submittedIn >= spans.LastNonzeroSlash
}

// filterTargets splits targets into effective and dangling ones.
func (s *Staking) filterTargets(ctx context.Context, n Nominations) (kept []common.AccountID, dropped []DroppedTarget, err error) {
	for _, t := range n.Targets {
		spans, err := s.SlashingSpansOf(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		if Effective(spans, n.SubmittedIn) {
			kept = append(kept, t)
			continue
		}
		dropped = append(dropped, DroppedTarget{Target: t, LastNonzeroSlash: spans.LastNonzeroSlash})
	}
	return kept, dropped, nil
}

// Stake is the active bonded balance of a stash: Ledger(Bonded(stash)).active.
func (s *Staking) Stake(ctx context.Context, stash common.AccountID) (common.Balance, error) {
	if b, ok := s.stakes[stash]; ok {
		return b, nil
	}
	controller, found, err := storage.ReadStrict(ctx, s.r, s.keys.entry(StakingBonded, stash[:]), scale.DecodeAccountID)
	if err != nil {
		return common.Balance{}, err
	}
	if !found {
		return common.Balance{}, fmt.Errorf("%s: not bonded: %w", stash, ErrNoLedger)
	}
	ledger, found, err := storage.ReadStrict(ctx, s.r, s.keys.entry(StakingLedger, controller[:]), DecodeLedger)
	if err != nil {
		return common.Balance{}, err
	}
	if !found {
		return common.Balance{}, fmt.Errorf("%s: controller %s: %w", stash, controller, ErrNoLedger)
	}
	s.stakes[stash] = ledger.Active
	return ledger.Active, nil
}

// Voters lists nominators with dangling targets dropped, followed by a
// self-vote for every candidate.
func (s *Staking) Voters(ctx context.Context, candidates []common.AccountID) ([]Voter, error) {
	nominations, err := s.Nominations(ctx)
	if err != nil {
		return nil, err
	}
	voters := make([]Voter, 0, len(nominations)+len(candidates))
	droppedTotal := 0
	for _, n := range nominations {
		kept, dropped, err := s.filterTargets(ctx, n.Value)
		if err != nil {
			return nil, err
		}
		if len(dropped) > 0 {
			s.logger.Debug("dropping dangling nominations", "nominator", n.Key, "kept", len(kept), "dropped", len(dropped))
			droppedTotal += len(dropped)
		}
		stake, err := s.Stake(ctx, n.Key)
		if err != nil {
			return nil, err
		}
		voters = append(voters, Voter{Who: n.Key, Stake: stake, Targets: kept})
	}
	for _, c := range candidates {
		stake, err := s.Stake(ctx, c)
		if err != nil {
			return nil, err
		}
		voters = append(voters, Voter{Who: c, Stake: stake, Targets: []common.AccountID{c}})
	}
	s.logger.Info("assembled staking voters",
		"nominators", len(nominations),
		"validators", len(candidates),
		"dangling_votes", droppedTotal,
	)
	return voters, nil
}

// Input assembles candidates and voters.
func (s *Staking) Input(ctx context.Context) (*Input, error) {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	voters, err := s.Voters(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("voters: %w", err)
	}
	return &Input{Candidates: candidates, Voters: voters}, nil
}

// ValidatorCount is the desired number of validators.
func (s *Staking) ValidatorCount(ctx context.Context) (int, error) {
	count, err := storage.ReadOr(ctx, s.r, s.keys.value(StakingValidatorCount), scale.DecodeU32, DefaultValidatorCount)
	return int(count), err
}

// DroppedTarget is a vote that no longer counts.
type DroppedTarget struct {
	Target           common.AccountID
	LastNonzeroSlash uint32
}

// DanglingNomination lists the dangling votes of one nominator.
type DanglingNomination struct {
	Nominator   common.AccountID
	SubmittedIn uint32
	Kept        []common.AccountID
	Dropped     []DroppedTarget
}

// DanglingReport summarizes the dangling nominations of all nominators.
type DanglingReport struct {
	// Effective counts nominators whose votes all count.
	Effective int
	// Dangling lists the nominators with at least one dangling vote.
	Dangling []DanglingNomination
}

// DanglingNominations checks every nomination against the slashing spans of
// its targets.
func (s *Staking) DanglingNominations(ctx context.Context) (*DanglingReport, error) {
	nominations, err := s.Nominations(ctx)
	if err != nil {
		return nil, err
	}
	report := &DanglingReport{}
	for i, n := range nominations {
		kept, dropped, err := s.filterTargets(ctx, n.Value)
		if err != nil {
			return nil, err
		}
		if len(dropped) == 0 {
			s.logger.Debug("nominator ok", "idx", i, "of", len(nominations), "nominator", n.Key, "votes", len(kept))
			report.Effective++
			continue
		}
		s.logger.Debug("nominator has dangling votes", "idx", i, "of", len(nominations), "nominator", n.Key, "kept", len(kept), "votes", len(n.Value.Targets))
		report.Dangling = append(report.Dangling, DanglingNomination{
			Nominator:   n.Key,
			SubmittedIn: n.Value.SubmittedIn,
			Kept:        kept,
			Dropped:     dropped,
		})
	}
	return report, nil
}

// ValidatorExposure is the stake behind an active validator.
type ValidatorExposure struct {
	Who      common.AccountID
	Exposure Exposure
}

// ActiveEra returns Staking.ActiveEra, or Staking.CurrentEra on runtimes
// without it.
func (s *Staking) ActiveEra(ctx context.Context) (uint32, error) {
	if !s.keys.legacy {
		era, found, err := storage.ReadStrict(ctx, s.r, StakingActiveEra.Key(), DecodeActiveEraIndex)
		if err != nil || found {
			return era, err
		}
	}
	era, found, err := storage.ReadStrict(ctx, s.r, s.keys.value(StakingCurrentEra), scale.DecodeU32)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("neither %s nor %s is set", StakingActiveEra, StakingCurrentEra)
	}
	return era, nil
}

// CurrentExposures lists the session validators with their exposure in the
// active era. Validators without exposure get an empty one. Legacy runtimes
// keep a single exposure per validator in Staking.Stakers.
func (s *Staking) CurrentExposures(ctx context.Context) (uint32, []ValidatorExposure, error) {
	era, err := s.ActiveEra(ctx)
	if err != nil {
		return 0, nil, err
	}
	validators, err := storage.ReadOr(ctx, s.r, s.keys.value(SessionValidators), scale.DecodeAccountIDs, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s: %w", SessionValidators, err)
	}
	eraKey := scale.EncodeU32(era)
	out := make([]ValidatorExposure, 0, len(validators))
	for _, v := range validators {
		key := StakingErasStakers.Key(eraKey, v[:])
		if s.keys.legacy {
			key = StakingStakers.LegacyKey(v[:])
		}
		expo, err := storage.ReadOr(ctx, s.r, key, DecodeExposure, Exposure{})
		if err != nil {
			return 0, nil, err
		}
		out = append(out, ValidatorExposure{Who: v, Exposure: expo})
	}
	return era, out, nil
}
