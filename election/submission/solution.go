package submission

import (
	"fmt"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/election/npos"
	"github.com/substrate-debug-kit/offline-election/storage/scale"
)

// MaxVotes is the number of edges a single voter may have.
const MaxVotes = 16

// Accuracy of submitted proportions.
const Accuracy = npos.PerU16

// IndexedEdge is one voter-to-target proportion by index.
type IndexedEdge struct {
	Target uint16
	Parts  uint16
}

// Vote is one voter's distribution. The proportion of Last is implied as
// whatever Edges leave of Accuracy.
type Vote struct {
	Voter uint32
	Edges []IndexedEdge
	Last  uint16
}

// Solution is an election outcome in submission form.
type Solution struct {
	Winners []uint16
	// Votes[k] holds the votes with k+1 targets.
	Votes [MaxVotes][]Vote
	Score npos.ElectionScore
	Era   uint32
}

// Encode converts winners and PerU16 assignments into index form. Every
// assignment must distribute exactly Accuracy parts; empty ones are dropped.
func Encode(tables *IndexTables, winners []common.AccountID, assignments []npos.Assignment, score npos.ElectionScore) (*Solution, error) {
	sol := &Solution{Score: score, Winners: make([]uint16, 0, len(winners))}
	for _, w := range winners {
		i, err := tables.TargetIndex(w)
		if err != nil {
			return nil, err
		}
		sol.Winners = append(sol.Winners, i)
	}

	for _, a := range assignments {
		n := len(a.Distribution)
		if n == 0 {
			continue
		}
		if n > MaxVotes {
			return nil, fmt.Errorf("voter %s has %d edges, at most %d allowed", a.Who, n, MaxVotes)
		}
		voter, err := tables.VoterIndex(a.Who)
		if err != nil {
			return nil, err
		}
		vote := Vote{Voter: voter, Edges: make([]IndexedEdge, 0, n-1)}
		var sum uint64
		for i, e := range a.Distribution {
			target, err := tables.TargetIndex(e.Target)
			if err != nil {
				return nil, err
			}
			if e.Parts > uint64(Accuracy) {
				return nil, fmt.Errorf("voter %s: proportion %d exceeds %d", a.Who, e.Parts, Accuracy)
			}
			sum += e.Parts
			if i == n-1 {
				vote.Last = target
				break
			}
			vote.Edges = append(vote.Edges, IndexedEdge{Target: target, Parts: uint16(e.Parts)})
		}
		if sum != uint64(Accuracy) {
			return nil, fmt.Errorf("voter %s: proportions sum to %d, want %d", a.Who, sum, Accuracy)
		}
		sol.Votes[n-1] = append(sol.Votes[n-1], vote)
	}
	return sol, nil
}

// VoterCount is the number of votes in the solution.
func (s *Solution) VoterCount() int {
	n := 0
	for _, group := range s.Votes {
		n += len(group)
	}
	return n
}

// EdgeCount is the number of voter-target edges in the solution.
func (s *Solution) EdgeCount() int {
	n := 0
	for k, group := range s.Votes {
		n += (k + 1) * len(group)
	}
	return n
}

func (s *Solution) encodeCompact(e *scale.Encoder) *scale.Encoder {
	for _, group := range s.Votes {
		e.VecLen(len(group))
		for _, v := range group {
			e.CompactU64(uint64(v.Voter))
			for _, edge := range v.Edges {
				e.CompactU64(uint64(edge.Target)).CompactU64(uint64(edge.Parts))
			}
			e.CompactU64(uint64(v.Last))
		}
	}
	return e
}

// Bytes is the SCALE encoding of (winners, compact votes, score, era).
func (s *Solution) Bytes() []byte {
	e := scale.NewEncoder()
	e.VecLen(len(s.Winners))
	for _, w := range s.Winners {
		e.U16(w)
	}
	s.encodeCompact(e)
	for i := range s.Score {
		e.U128(&s.Score[i])
	}
	return e.U32(s.Era).Bytes()
}

// EncodedSize is the length of Bytes.
func (s *Solution) EncodedSize() int {
	return len(s.Bytes())
}

// WinnerIDs resolves the winner indices.
func (s *Solution) WinnerIDs(tables *IndexTables) ([]common.AccountID, error) {
	out := make([]common.AccountID, len(s.Winners))
	for i, w := range s.Winners {
		who, err := tables.target(w)
		if err != nil {
			return nil, err
		}
		out[i] = who
	}
	return out, nil
}

// Assignments resolves the votes back into assignments, restoring the
// implied last proportion.
func (s *Solution) Assignments(tables *IndexTables) ([]npos.Assignment, error) {
	out := make([]npos.Assignment, 0, s.VoterCount())
	for _, group := range s.Votes {
		for _, v := range group {
			who, err := tables.voter(v.Voter)
			if err != nil {
				return nil, err
			}
			a := npos.Assignment{Who: who, Distribution: make([]npos.Edge, 0, len(v.Edges)+1)}
			var sum uint64
			for _, edge := range v.Edges {
				target, err := tables.target(edge.Target)
				if err != nil {
					return nil, err
				}
				sum += uint64(edge.Parts)
				a.Distribution = append(a.Distribution, npos.Edge{Target: target, Parts: uint64(edge.Parts)})
			}
			if sum > uint64(Accuracy) {
				return nil, fmt.Errorf("voter %s: proportions sum to %d, over %d", who, sum, Accuracy)
			}
			last, err := tables.target(v.Last)
			if err != nil {
				return nil, err
			}
			a.Distribution = append(a.Distribution, npos.Edge{Target: last, Parts: uint64(Accuracy) - sum})
			out = append(out, a)
		}
	}
	return out, nil
}

// Decode parses the output of Bytes.
func Decode(buf []byte) (*Solution, error) {
	return scale.Decode(buf, decodeSolution)
}

func decodeSolution(d *scale.Decoder) (*Solution, error) {
	s := &Solution{}
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	s.Winners = make([]uint16, n)
	for i := range s.Winners {
		if s.Winners[i], err = d.U16(); err != nil {
			return nil, err
		}
	}
	for k := range s.Votes {
		if s.Votes[k], err = scale.Vec(d, voteDecoder(k)); err != nil {
			return nil, fmt.Errorf("votes%d: %w", k+1, err)
		}
	}
	for i := range s.Score {
		v, err := d.U128()
		if err != nil {
			return nil, err
		}
		s.Score[i] = *v
	}
	if s.Era, err = d.U32(); err != nil {
		return nil, err
	}
	return s, nil
}

func compactUint[T uint16 | uint32](d *scale.Decoder, limit uint64) (T, error) {
	v, err := d.CompactU64()
	if err != nil {
		return 0, err
	}
	if v > limit {
		return 0, fmt.Errorf("compact %d overflows %d", v, limit)
	}
	return T(v), nil
}

func voteDecoder(edges int) func(*scale.Decoder) (Vote, error) {
	return func(d *scale.Decoder) (Vote, error) {
		var (
			v   Vote
			err error
		)
		if v.Voter, err = compactUint[uint32](d, 1<<32-1); err != nil {
			return v, err
		}
		v.Edges = make([]IndexedEdge, edges)
		for i := range v.Edges {
			if v.Edges[i].Target, err = compactUint[uint16](d, 1<<16-1); err != nil {
				return v, err
			}
			if v.Edges[i].Parts, err = compactUint[uint16](d, 1<<16-1); err != nil {
				return v, err
			}
		}
		v.Last, err = compactUint[uint16](d, 1<<16-1)
		return v, err
	}
}
