package data

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	"github.com/substrate-debug-kit/offline-election/common"
)

// Override is a manual edit of an election input. It is applied in the
// order add, mutate, remove; so an account both added and removed ends up
// removed.
type Override struct {
	VotersAdd        []Voter
	VotersRemove     []common.AccountID
	VotersMutate     []Voter
	CandidatesAdd    []common.AccountID
	CandidatesRemove []common.AccountID
}

type voterDoc struct {
	Who     string   `koanf:"who"`
	Stake   string   `koanf:"stake"`
	Targets []string `koanf:"targets"`
}

type overrideDoc struct {
	VotersAdd        []voterDoc `koanf:"voters_add"`
	VotersRemove     []string   `koanf:"voters_remove"`
	VotersMutate     []voterDoc `koanf:"voters_mutate"`
	CandidatesAdd    []string   `koanf:"candidates_add"`
	CandidatesRemove []string   `koanf:"candidates_remove"`
}

// LoadOverride reads an override document. Files ending in .json are parsed
// as JSON, anything else as YAML.
func LoadOverride(path string) (*Override, error) {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}
	return loadOverride(file.Provider(path), parser)
}

// ParseOverride reads an override document from memory; format is "json"
// or "yaml".
func ParseOverride(raw []byte, format string) (*Override, error) {
	var parser koanf.Parser = yaml.Parser()
	if format == "json" {
		parser = json.Parser()
	}
	return loadOverride(rawbytes.Provider(raw), parser)
}

func loadOverride(p koanf.Provider, parser koanf.Parser) (*Override, error) {
	k := koanf.New(".")
	if err := k.Load(p, parser); err != nil {
		return nil, fmt.Errorf("loading override: %w", err)
	}
	var doc overrideDoc
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("parsing override: %w", err)
	}

	var (
		o   Override
		err error
	)
	if o.VotersAdd, err = parseVoters(doc.VotersAdd, true); err != nil {
		return nil, fmt.Errorf("voters_add: %w", err)
	}
	if o.VotersMutate, err = parseVoters(doc.VotersMutate, false); err != nil {
		return nil, fmt.Errorf("voters_mutate: %w", err)
	}
	if o.VotersRemove, err = parseAccounts(doc.VotersRemove); err != nil {
		return nil, fmt.Errorf("voters_remove: %w", err)
	}
	if o.CandidatesAdd, err = parseAccounts(doc.CandidatesAdd); err != nil {
		return nil, fmt.Errorf("candidates_add: %w", err)
	}
	if o.CandidatesRemove, err = parseAccounts(doc.CandidatesRemove); err != nil {
		return nil, fmt.Errorf("candidates_remove: %w", err)
	}
	return &o, nil
}

func parseAccounts(raw []string) ([]common.AccountID, error) {
	out := make([]common.AccountID, 0, len(raw))
	for _, s := range raw {
		a, err := common.ParseAccountID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseVoters(docs []voterDoc, needStake bool) ([]Voter, error) {
	out := make([]Voter, 0, len(docs))
	for i, d := range docs {
		var (
			v   Voter
			err error
		)
		if v.Who, err = common.ParseAccountID(d.Who); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		switch {
		case d.Stake != "":
			if err := v.Stake.UnmarshalText([]byte(d.Stake)); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		case needStake:
			return nil, fmt.Errorf("entry %d: stake is required", i)
		}
		if v.Targets, err = parseAccounts(d.Targets); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Apply edits in in place. Adding an existing voter replaces its stake and
// targets. Mutating replaces the targets of an existing voter, and its stake
// if one is given; mutating an unknown voter is an error.
func (o *Override) Apply(in *Input) error {
	for _, c := range o.CandidatesAdd {
		if !slices.Contains(in.Candidates, c) {
			in.Candidates = append(in.Candidates, c)
		}
	}
	for _, add := range o.VotersAdd {
		if i := voterIndex(in.Voters, add.Who); i >= 0 {
			in.Voters[i] = add
		} else {
			in.Voters = append(in.Voters, add)
		}
	}
	for _, m := range o.VotersMutate {
		i := voterIndex(in.Voters, m.Who)
		if i < 0 {
			return fmt.Errorf("voters_mutate: unknown voter %s", m.Who)
		}
		in.Voters[i].Targets = m.Targets
		if !m.Stake.IsZero() {
			in.Voters[i].Stake = m.Stake
		}
	}
	if len(o.CandidatesRemove) > 0 {
		in.Candidates = slices.DeleteFunc(in.Candidates, func(c common.AccountID) bool {
			return slices.Contains(o.CandidatesRemove, c)
		})
	}
	if len(o.VotersRemove) > 0 {
		in.Voters = slices.DeleteFunc(in.Voters, func(v Voter) bool {
			return slices.Contains(o.VotersRemove, v.Who)
		})
	}
	return nil
}

func voterIndex(voters []Voter, who common.AccountID) int {
	return slices.IndexFunc(voters, func(v Voter) bool { return v.Who == who })
}
