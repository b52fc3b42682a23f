package npos

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// den is the common denominator of all fixed-point scores and loads.
var den = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

// SeqPhragmen is sequential Phragmén with loads kept as fixed-point
// fractions over a 128-bit denominator, matching the on-chain solver.
type SeqPhragmen struct{}

var _ Solver = SeqPhragmen{}

func (SeqPhragmen) Name() string { return "seq-phragmen" }

type phragmenCandidate struct {
	who      common.AccountID
	approval uint256.Int
	score    uint256.Int
	elected  bool
}

type phragmenEdge struct {
	candidate int
	load      uint256.Int
}

type phragmenVoter struct {
	who    common.AccountID
	budget uint256.Int
	load   uint256.Int
	edges  []phragmenEdge
}

// Solve runs min(seats, candidates with approval) rounds, electing in each
// the candidate whose election would give the lowest resulting voter load.
// Candidates nobody approves are never elected.
func (SeqPhragmen) Solve(seats, minSeats int, candidateIDs []common.AccountID, voterList []Voter, accuracy Accuracy) (*ElectionResult, error) {
	ids, resolved := buildVoterEdges(candidateIDs, voterList)
	candidates := make([]phragmenCandidate, len(ids))
	for i, id := range ids {
		candidates[i].who = id
	}
	voters := make([]phragmenVoter, len(resolved))
	for i, v := range resolved {
		voters[i].who = v.who
		voters[i].budget.SetUint64(v.budget)
		for _, c := range v.targets {
			voters[i].edges = append(voters[i].edges, phragmenEdge{candidate: c})
			candidates[c].approval.Add(&candidates[c].approval, &voters[i].budget)
		}
	}

	eligible := 0
	for i := range candidates {
		if !candidates[i].approval.IsZero() {
			eligible++
		}
	}
	rounds := min(seats, eligible)
	if rounds < minSeats {
		return nil, fmt.Errorf("%w: %d eligible candidates, need %d", ErrTooFewWinners, eligible, minSeats)
	}

	winners := make([]int, 0, rounds)
	for round := 0; round < rounds; round++ {
		for i := range candidates {
			c := &candidates[i]
			if c.elected || c.approval.IsZero() {
				continue
			}
			c.score.Div(den, &c.approval)
		}
		for i := range voters {
			v := &voters[i]
			if v.load.IsZero() {
				continue
			}
			for _, e := range v.edges {
				c := &candidates[e.candidate]
				if c.elected || c.approval.IsZero() {
					continue
				}
				inc := mulDivSat(&v.load, &v.budget, &c.approval)
				c.score = *satAdd(&c.score, inc)
			}
		}

		best := -1
		for i := range candidates {
			c := &candidates[i]
			if c.elected || c.approval.IsZero() {
				continue
			}
			if best < 0 || c.score.Lt(&candidates[best].score) {
				best = i
			}
		}
		winner := &candidates[best]
		winner.elected = true
		winners = append(winners, best)

		for i := range voters {
			v := &voters[i]
			for j := range v.edges {
				if v.edges[j].candidate == best {
					v.edges[j].load = *satSub(&winner.score, &v.load)
					v.load = winner.score
				}
			}
		}
	}

	result := &ElectionResult{Accuracy: accuracy}
	for _, w := range winners {
		result.Winners = append(result.Winners, Winner{Who: candidates[w].who, Approval: candidates[w].approval})
	}
	acc := uint256.NewInt(uint64(accuracy))
	for i := range voters {
		v := &voters[i]
		a := Assignment{Who: v.who}
		for _, e := range v.edges {
			if !candidates[e.candidate].elected {
				continue
			}
			var parts uint64
			switch {
			case e.load.Eq(&v.load):
				parts = uint64(accuracy)
			case v.load.IsZero():
			default:
				parts = mulDivSat(acc, &e.load, &v.load).Uint64()
			}
			a.Distribution = append(a.Distribution, Edge{Target: candidates[e.candidate].who, Parts: parts})
		}
		if len(a.Distribution) == 0 {
			continue
		}
		normalize(a.Distribution, accuracy)
		result.Assignments = append(result.Assignments, a)
	}
	return result, nil
}
