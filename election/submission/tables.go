// Package submission encodes an election outcome in the compact, index based
// form the chain accepts as an off-chain solution.
package submission

import (
	"context"
	"fmt"
	"math"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// Role of an account in the index tables.
type Role string

const (
	RoleVoter  Role = "voter"
	RoleTarget Role = "target"
)

// IndexNotFoundError reports an account missing from the index tables.
type IndexNotFoundError struct {
	Who  common.AccountID
	Role Role
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found in index tables", e.Role, e.Who)
}

// IndexTables map accounts to their position in the chain's election
// snapshot. Voters are nominators followed by validators.
type IndexTables struct {
	Voters  []common.AccountID
	Targets []common.AccountID
	// FromSnapshot is set when the chain's own snapshot provided the tables.
	FromSnapshot bool

	voterIdx  map[common.AccountID]uint32
	targetIdx map[common.AccountID]uint16
}

// NewIndexTables indexes voters and targets. Duplicates keep their first
// position.
func NewIndexTables(voters, targets []common.AccountID) (*IndexTables, error) {
	if uint64(len(voters)) > math.MaxUint32 {
		return nil, fmt.Errorf("%d voters overflow a u32 index", len(voters))
	}
	if len(targets) > math.MaxUint16+1 {
		return nil, fmt.Errorf("%d targets overflow a u16 index", len(targets))
	}
	t := &IndexTables{
		Voters:    voters,
		Targets:   targets,
		voterIdx:  make(map[common.AccountID]uint32, len(voters)),
		targetIdx: make(map[common.AccountID]uint16, len(targets)),
	}
	for i, v := range voters {
		if _, ok := t.voterIdx[v]; !ok {
			t.voterIdx[v] = uint32(i)
		}
	}
	for i, v := range targets {
		if _, ok := t.targetIdx[v]; !ok {
			t.targetIdx[v] = uint16(i)
		}
	}
	return t, nil
}

func (t *IndexTables) VoterIndex(who common.AccountID) (uint32, error) {
	i, ok := t.voterIdx[who]
	if !ok {
		return 0, &IndexNotFoundError{Who: who, Role: RoleVoter}
	}
	return i, nil
}

func (t *IndexTables) TargetIndex(who common.AccountID) (uint16, error) {
	i, ok := t.targetIdx[who]
	if !ok {
		return 0, &IndexNotFoundError{Who: who, Role: RoleTarget}
	}
	return i, nil
}

func (t *IndexTables) voter(i uint32) (common.AccountID, error) {
	if int(i) >= len(t.Voters) {
		return common.AccountID{}, fmt.Errorf("voter index %d out of range", i)
	}
	return t.Voters[i], nil
}

func (t *IndexTables) target(i uint16) (common.AccountID, error) {
	if int(i) >= len(t.Targets) {
		return common.AccountID{}, fmt.Errorf("target index %d out of range", i)
	}
	return t.Targets[i], nil
}

// LoadIndexTables reads the tables from the chain's election snapshot. If
// the chain has not taken one, they are rebuilt from the nominator and
// validator maps in storage order.
func LoadIndexTables(ctx context.Context, r storage.Reader) (*IndexTables, error) {
	nominators, nFound, err := storage.ReadStrict(ctx, r, data.StakingSnapshotNominators.Key(), scale.DecodeAccountIDs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", data.StakingSnapshotNominators, err)
	}
	validators, vFound, err := storage.ReadStrict(ctx, r, data.StakingSnapshotValidators.Key(), scale.DecodeAccountIDs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", data.StakingSnapshotValidators, err)
	}
	if nFound && vFound {
		t, err := NewIndexTables(nominators, validators)
		if err != nil {
			return nil, err
		}
		t.FromSnapshot = true
		return t, nil
	}

	if nominators, err = storage.MapKeys(ctx, r, data.StakingNominators, scale.DecodeAccountID); err != nil {
		return nil, fmt.Errorf("listing %s: %w", data.StakingNominators, err)
	}
	if validators, err = storage.MapKeys(ctx, r, data.StakingValidators, scale.DecodeAccountID); err != nil {
		return nil, fmt.Errorf("listing %s: %w", data.StakingValidators, err)
	}
	voters := make([]common.AccountID, 0, len(nominators)+len(validators))
	voters = append(append(voters, nominators...), validators...)
	return NewIndexTables(voters, validators)
}
