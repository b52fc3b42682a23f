package election

import (
	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/election/npos"
)

// primeVotePositions is how many ranked votes count towards the prime.
const primeVotePositions = 16

// CouncilPrime picks the prime among members. A voter's i-th vote for a
// member counts (16 - i) times its weight. Ties go to the member listed
// first. ok is false when no member received any vote.
func CouncilPrime(members []common.AccountID, voters []npos.Voter) (prime common.AccountID, ok bool) {
	score := make(map[common.AccountID]*uint256.Int, len(members))
	for _, m := range members {
		score[m] = new(uint256.Int)
	}
	for _, v := range voters {
		stake := uint256.NewInt(v.Stake)
		for i, t := range v.Targets {
			if i >= primeVotePositions {
				break
			}
			s, member := score[t]
			if !member {
				continue
			}
			w := new(uint256.Int).Mul(stake, uint256.NewInt(uint64(primeVotePositions-i)))
			s.Add(s, w)
		}
	}
	var best *uint256.Int
	for _, m := range members {
		s := score[m]
		if s.IsZero() {
			continue
		}
		if best == nil || s.Gt(best) {
			best, prime, ok = s, m, true
		}
	}
	return prime, ok
}
