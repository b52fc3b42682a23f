// Package npos implements the sequential Phragmén election method and the
// post-processing steps applied to its result: stake balancing, edge
// reduction and solution scoring.
package npos

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// VoteWeight is a voter's stake after currency-to-vote conversion.
type VoteWeight = uint64

// Accuracy is the number of parts making up a whole proportion.
type Accuracy uint64

const (
	// Perbill is the accuracy used by the chain when electing.
	Perbill Accuracy = 1_000_000_000
	// PerU16 is the accuracy of compact submissions.
	PerU16 Accuracy = 65_535
)

// ErrTooFewWinners is returned when fewer than the minimum number of
// candidates could be elected.
var ErrTooFewWinners = errors.New("npos: fewer winners than the minimum")

// Voter is an election input: an account backing some candidates with its
// whole stake.
type Voter struct {
	Who     common.AccountID
	Stake   VoteWeight
	Targets []common.AccountID
}

// Winner is an elected candidate with the sum of the stake of all voters
// approving it.
type Winner struct {
	Who      common.AccountID
	Approval uint256.Int
}

// Edge is a proportion of a voter's stake assigned to one target, in parts
// of the result's Accuracy.
type Edge struct {
	Target common.AccountID
	Parts  uint64
}

// Assignment distributes one voter's stake over elected targets. Parts sum
// to exactly the accuracy.
type Assignment struct {
	Who          common.AccountID
	Distribution []Edge
}

// StakedEdge is an absolute amount of stake assigned to one target.
type StakedEdge struct {
	Target common.AccountID
	Stake  VoteWeight
}

// StakedAssignment distributes one voter's stake in absolute amounts.
type StakedAssignment struct {
	Who          common.AccountID
	Distribution []StakedEdge
}

// Total is the sum of all edge stakes.
func (a *StakedAssignment) Total() VoteWeight {
	var total VoteWeight
	for _, e := range a.Distribution {
		total += e.Stake
	}
	return total
}

// ElectionResult is the raw output of a solver.
type ElectionResult struct {
	Winners     []Winner
	Assignments []Assignment
	Accuracy    Accuracy
}

// WinnerIDs lists the winners in election order.
func (r *ElectionResult) WinnerIDs() []common.AccountID {
	out := make([]common.AccountID, len(r.Winners))
	for i, w := range r.Winners {
		out[i] = w.Who
	}
	return out
}

// Solver elects `seats` candidates from candidates using voters' stakes.
// Fewer than minSeats winners is ErrTooFewWinners.
type Solver interface {
	Name() string
	Solve(seats, minSeats int, candidates []common.AccountID, voters []Voter, accuracy Accuracy) (*ElectionResult, error)
}

func satAdd(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return z.SetAllOne()
	}
	return z
}

func satSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func mulDivSat(x, y, d *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return z.SetAllOne()
	}
	return z
}

// normalize tops up parts so they sum to accuracy. The deficit is spread
// evenly and what is left is given one part at a time from the front.
func normalize(edges []Edge, accuracy Accuracy) {
	if len(edges) == 0 {
		return
	}
	var sum uint64
	for _, e := range edges {
		sum += e.Parts
	}
	if sum >= uint64(accuracy) {
		return
	}
	diff := uint64(accuracy) - sum
	perEdge := diff / uint64(len(edges))
	remainder := diff % uint64(len(edges))
	for i := range edges {
		edges[i].Parts += perEdge
		if uint64(i) < remainder {
			edges[i].Parts++
		}
	}
}

// voterEdges is a voter with targets resolved to candidate indices.
// Unknown and repeated targets are dropped.
type voterEdges struct {
	who     common.AccountID
	budget  VoteWeight
	targets []int
}

// buildVoterEdges also drops repeated candidates.
func buildVoterEdges(candidates []common.AccountID, voters []Voter) ([]common.AccountID, []voterEdges) {
	candidates = common.Dedup(candidates)
	index := make(map[common.AccountID]int, len(candidates))
	for i, c := range candidates {
		index[c] = i
	}
	out := make([]voterEdges, 0, len(voters))
	for _, v := range voters {
		ve := voterEdges{who: v.Who, budget: v.Stake}
		for _, t := range common.Dedup(v.Targets) {
			if i, ok := index[t]; ok {
				ve.targets = append(ve.targets, i)
			}
		}
		out = append(out, ve)
	}
	return candidates, out
}
