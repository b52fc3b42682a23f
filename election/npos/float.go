package npos

import (
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
)

// FloatPhragmen is sequential Phragmén on float64 loads. It is faster than
// SeqPhragmen but may break near-ties differently, so it is only used to
// cross-check results.
type FloatPhragmen struct{}

var _ Solver = FloatPhragmen{}

func (FloatPhragmen) Name() string { return "float-phragmen" }

func (FloatPhragmen) Solve(seats, minSeats int, candidateIDs []common.AccountID, voterList []Voter, accuracy Accuracy) (*ElectionResult, error) {
	ids, resolved := buildVoterEdges(candidateIDs, voterList)
	approval := make([]uint256.Int, len(ids))
	for _, v := range resolved {
		for _, c := range v.targets {
			approval[c].Add(&approval[c], uint256.NewInt(v.budget))
		}
	}
	approvalF := make([]float64, len(ids))
	eligible := 0
	for i := range approval {
		approvalF[i], _ = new(big.Float).SetInt(approval[i].ToBig()).Float64()
		if !approval[i].IsZero() {
			eligible++
		}
	}
	rounds := min(seats, eligible)
	if rounds < minSeats {
		return nil, fmt.Errorf("%w: %d eligible candidates, need %d", ErrTooFewWinners, eligible, minSeats)
	}

	elected := make([]bool, len(ids))
	score := make([]float64, len(ids))
	voterLoad := make([]float64, len(resolved))
	edgeLoad := make([][]float64, len(resolved))
	for i, v := range resolved {
		edgeLoad[i] = make([]float64, len(v.targets))
	}

	winners := make([]int, 0, rounds)
	for round := 0; round < rounds; round++ {
		for c := range score {
			if approvalF[c] > 0 {
				score[c] = 1 / approvalF[c]
			}
		}
		for i, v := range resolved {
			for _, c := range v.targets {
				if !elected[c] && approvalF[c] > 0 {
					score[c] += voterLoad[i] * float64(v.budget) / approvalF[c]
				}
			}
		}
		best := -1
		bestScore := math.Inf(1)
		for c := range score {
			if elected[c] || approvalF[c] == 0 {
				continue
			}
			if score[c] < bestScore {
				best, bestScore = c, score[c]
			}
		}
		elected[best] = true
		winners = append(winners, best)
		for i, v := range resolved {
			for j, c := range v.targets {
				if c == best {
					edgeLoad[i][j] = bestScore - voterLoad[i]
					voterLoad[i] = bestScore
				}
			}
		}
	}

	result := &ElectionResult{Accuracy: accuracy}
	for _, w := range winners {
		result.Winners = append(result.Winners, Winner{Who: ids[w], Approval: approval[w]})
	}
	for i, v := range resolved {
		a := Assignment{Who: v.who}
		for j, c := range v.targets {
			if !elected[c] {
				continue
			}
			var parts uint64
			if voterLoad[i] > 0 {
				parts = uint64(math.Floor(float64(accuracy) * edgeLoad[i][j] / voterLoad[i]))
			}
			a.Distribution = append(a.Distribution, Edge{Target: ids[c], Parts: min(parts, uint64(accuracy))})
		}
		if len(a.Distribution) == 0 {
			continue
		}
		normalize(a.Distribution, accuracy)
		result.Assignments = append(result.Assignments, a)
	}
	return result, nil
}
