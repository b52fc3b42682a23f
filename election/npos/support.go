package npos

import (
	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// Backing is one voter's stake behind a winner.
type Backing struct {
	Who   common.AccountID
	Stake VoteWeight
}

// Support is the total stake behind a winner.
type Support struct {
	Total  uint256.Int
	Voters []Backing
}

// SupportMap maps each winner to its support.
type SupportMap map[common.AccountID]*Support

// BuildSupportMap aggregates staked assignments per winner. Edges pointing
// at accounts that are not winners are skipped and counted.
func BuildSupportMap(winners []common.AccountID, staked []StakedAssignment) (SupportMap, int) {
	supports := make(SupportMap, len(winners))
	for _, w := range winners {
		supports[w] = &Support{}
	}
	skipped := 0
	for _, a := range staked {
		for _, e := range a.Distribution {
			s, ok := supports[e.Target]
			if !ok {
				skipped++
				continue
			}
			s.Total.Add(&s.Total, uint256.NewInt(e.Stake))
			s.Voters = append(s.Voters, Backing{Who: a.Who, Stake: e.Stake})
		}
	}
	return supports, skipped
}

// SelfStake is the stake the winner puts behind itself, if any.
func (s *Support) SelfStake(who common.AccountID) VoteWeight {
	for _, b := range s.Voters {
		if b.Who == who {
			return b.Stake
		}
	}
	return 0
}

// ElectionScore is [minimal support, sum of supports, sum of squared
// supports].
type ElectionScore [3]uint256.Int

// Evaluate scores a support map. An empty map scores zero.
func Evaluate(supports SupportMap) ElectionScore {
	var score ElectionScore
	first := true
	for _, s := range supports {
		if first || s.Total.Lt(&score[0]) {
			score[0] = s.Total
			first = false
		}
		score[1] = *satAdd(&score[1], &s.Total)
		sq, overflow := new(uint256.Int).MulOverflow(&s.Total, &s.Total)
		if overflow {
			sq.SetAllOne()
		}
		score[2] = *satAdd(&score[2], sq)
	}
	return score
}

// IsBetter reports whether s beats other: larger minimal support first,
// then larger total support, then smaller sum of squares.
func (s ElectionScore) IsBetter(other ElectionScore) bool {
	if c := s[0].Cmp(&other[0]); c != 0 {
		return c > 0
	}
	if c := s[1].Cmp(&other[1]); c != 0 {
		return c > 0
	}
	return s[2].Lt(&other[2])
}

func (s ElectionScore) String() string {
	return "[" + s[0].Dec() + ", " + s[1].Dec() + ", " + s[2].Dec() + "]"
}
