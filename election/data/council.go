package data

import (
	"context"
	"fmt"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/keys"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// Council reads the council election input from the Phragmén elections
// pallet named by the chain profile.
type Council struct {
	r       storage.Reader
	logger  *log.Logger
	module  string
	layout  string
	keys    keyspace
	profile *config.ChainProfile
}

func NewCouncil(r storage.Reader, profile *config.ChainProfile, logger *log.Logger) *Council {
	layout := profile.CouncilVoterLayout
	if layout == "" {
		layout = config.VoterLayoutStruct
	}
	return &Council{
		r:       r,
		logger:  logger.WithModule("council"),
		module:  profile.CouncilModule,
		layout:  layout,
		keys:    keyspace{legacy: profile.LegacyStorage},
		profile: profile,
	}
}

func (c *Council) item(name string) storage.ValueItem {
	return storage.ValueItem{Module: c.module, Item: name}
}

func (c *Council) voting() storage.MapItem {
	return storage.MapItem{Module: c.module, Item: "Voting", Hasher: keys.Twox64Concat}
}

func (c *Council) legacyVotes() storage.MapItem {
	return storage.MapItem{Module: c.module, Item: "VotesOf", Hasher: keys.Blake2_256}
}

func (c *Council) legacyStakes() storage.MapItem {
	return storage.MapItem{Module: c.module, Item: "StakeOf", Hasher: keys.Blake2_256}
}

// Candidates is members, then runners-up, then new candidates, keeping the
// first occurrence of any account.
func (c *Council) Candidates(ctx context.Context) ([]common.AccountID, error) {
	members, err := storage.ReadOr(ctx, c.r, c.keys.value(c.item("Members")), membersDecoder(c.layout), nil)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	runnersUp, err := storage.ReadOr(ctx, c.r, c.keys.value(c.item("RunnersUp")), membersDecoder(c.layout), nil)
	if err != nil {
		return nil, fmt.Errorf("runners-up: %w", err)
	}
	fresh, err := storage.ReadOr(ctx, c.r, c.keys.value(c.item("Candidates")), c.decodeCandidates, nil)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	c.logger.Debug("council candidates",
		"members", len(members),
		"runners_up", len(runnersUp),
		"candidates", len(fresh),
	)
	all := make([]common.AccountID, 0, len(members)+len(runnersUp)+len(fresh))
	all = append(all, members...)
	all = append(all, runnersUp...)
	all = append(all, fresh...)
	return common.Dedup(all), nil
}

// decodeCandidates reads Vec<AccountId> in the tuple layout and
// Vec<(AccountId, Balance)> with candidacy deposits in the struct layout.
func (c *Council) decodeCandidates(d *scale.Decoder) ([]common.AccountID, error) {
	if c.layout == config.VoterLayoutTuple {
		return scale.DecodeAccountIDs(d)
	}
	return scale.Vec(d, func(d *scale.Decoder) (common.AccountID, error) {
		who, err := d.AccountID()
		if err != nil {
			return who, err
		}
		_, err = d.Balance()
		return who, err
	})
}

// Voters lists council voters with their locked stake.
func (c *Council) Voters(ctx context.Context) ([]Voter, error) {
	if c.keys.legacy {
		return c.legacyVoters(ctx)
	}
	entries, err := storage.EnumerateMap(ctx, c.r, c.voting(), scale.DecodeAccountID, voteDecoder(c.layout))
	if err := tolerateDecodeErrors(c.logger, c.voting(), err); err != nil {
		return nil, err
	}
	voters := make([]Voter, 0, len(entries))
	for _, e := range entries {
		voters = append(voters, Voter{Who: e.Key, Stake: e.Value.Stake, Targets: e.Value.Votes})
	}
	return voters, nil
}

// legacyVoters walks the VotesOf linked map and reads each voter's stake
// from StakeOf.
func (c *Council) legacyVoters(ctx context.Context) ([]Voter, error) {
	entries, err := linkedAccountMap(ctx, c.r, c.legacyVotes(), scale.DecodeAccountIDs)
	if err != nil {
		return nil, err
	}
	voters := make([]Voter, 0, len(entries))
	for _, e := range entries {
		stake, err := storage.ReadOr(ctx, c.r, c.legacyStakes().LegacyKey(e.Key[:]), scale.DecodeBalance, common.Balance{})
		if err != nil {
			return nil, fmt.Errorf("stake of %s: %w", e.Key, err)
		}
		voters = append(voters, Voter{Who: e.Key, Stake: stake, Targets: e.Value})
	}
	return voters, nil
}

func (c *Council) Input(ctx context.Context) (*Input, error) {
	candidates, err := c.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	voters, err := c.Voters(ctx)
	if err != nil {
		return nil, fmt.Errorf("voters: %w", err)
	}
	return &Input{Candidates: candidates, Voters: voters}, nil
}

// Seats is the number of members plus runners-up to elect by default.
func (c *Council) Seats() (members, runnersUp int) {
	return c.profile.CouncilSeats, c.profile.CouncilRunnersUp
}
