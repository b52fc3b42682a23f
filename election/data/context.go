// Package data assembles election inputs (candidates, voters and their
// stakes) from chain state.
package data

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/election/npos"
	"github.com/substrate-debug-kit/offline-election/storage"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// CurrencyToVote converts balances into vote weights that fit the solver's
// 64-bit arithmetic, scaling by a factor derived from total issuance.
type CurrencyToVote struct {
	factor uint256.Int
}

var maxVoteWeight = uint256.NewInt(math.MaxUint64)

// NewCurrencyToVote derives the factor max(1, issuance / MaxUint64).
func NewCurrencyToVote(issuance common.Balance) CurrencyToVote {
	var c CurrencyToVote
	c.factor.Div(&issuance.Int, maxVoteWeight)
	if c.factor.IsZero() {
		c.factor.SetOne()
	}
	return c
}

func (c CurrencyToVote) Factor() common.Balance {
	return common.BalanceFromInt(&c.factor)
}

// ToVote scales a balance down, saturating at MaxUint64.
func (c CurrencyToVote) ToVote(b common.Balance) uint64 {
	v := new(uint256.Int).Div(&b.Int, &c.factor)
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

// ToCurrency scales a vote weight back up.
func (c CurrencyToVote) ToCurrency(v uint64) common.Balance {
	return common.BalanceFromInt(new(uint256.Int).Mul(uint256.NewInt(v), &c.factor))
}

// SupportToCurrency scales a support total back up, saturating.
func (c CurrencyToVote) SupportToCurrency(v *uint256.Int) common.Balance {
	out, overflow := new(uint256.Int).MulOverflow(v, &c.factor)
	if overflow {
		out.SetAllOne()
	}
	return common.BalanceFromInt(out)
}

// ElectionContext carries the per-run state of one election. Build a new one
// for every run so the conversion factor tracks the state being elected on.
type ElectionContext struct {
	RunID          uuid.UUID
	Profile        *config.ChainProfile
	Issuance       common.Balance
	CurrencyToVote CurrencyToVote
}

// NewElectionContext reads Balances.TotalIssuance from r.
func NewElectionContext(ctx context.Context, r storage.Reader, profile *config.ChainProfile) (*ElectionContext, error) {
	issuance, err := storage.ReadOr(ctx, r, keyspace{legacy: profile.LegacyStorage}.value(BalancesTotalIssuance), scale.DecodeBalance, common.Balance{})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", BalancesTotalIssuance, err)
	}
	return &ElectionContext{
		RunID:          uuid.New(),
		Profile:        profile,
		Issuance:       issuance,
		CurrencyToVote: NewCurrencyToVote(issuance),
	}, nil
}

// SolverVoters converts voter stakes into vote weights.
func (c *ElectionContext) SolverVoters(voters []Voter) []npos.Voter {
	out := make([]npos.Voter, len(voters))
	for i, v := range voters {
		out[i] = npos.Voter{Who: v.Who, Stake: c.CurrencyToVote.ToVote(v.Stake), Targets: v.Targets}
	}
	return out
}
