package election

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/election"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/storage/snapshot"
)

type backingOutput struct {
	Who   string         `json:"who"`
	Stake common.Balance `json:"stake"`
}

type winnerOutput struct {
	Rank     int             `json:"rank"`
	Who      string          `json:"who"`
	Role     string          `json:"role,omitempty"`
	Approval common.Balance  `json:"approval"`
	Total    common.Balance  `json:"total"`
	Own      common.Balance  `json:"own"`
	Voters   []backingOutput `json:"voters"`
}

type submissionOutput struct {
	Solution     string `json:"solution"`
	Size         int    `json:"size"`
	Voters       int    `json:"voters"`
	Edges        int    `json:"edges"`
	Era          uint32 `json:"era"`
	FromSnapshot bool   `json:"from_snapshot"`
}

type electionOutput struct {
	RunID             string            `json:"run_id"`
	Chain             string            `json:"chain"`
	At                common.Hash       `json:"at"`
	Solver            string            `json:"solver"`
	Seats             int               `json:"seats"`
	Candidates        int               `json:"candidates"`
	Voters            int               `json:"voters"`
	Score             [3]string         `json:"score"`
	BalanceIterations int               `json:"balance_iterations"`
	ReducedEdges      int               `json:"reduced_edges"`
	Winners           []winnerOutput    `json:"winners"`
	Prime             string            `json:"prime,omitempty"`
	Submission        *submissionOutput `json:"submission,omitempty"`
}

func newElectionOutput(snap *snapshot.Snapshot, ectx *data.ElectionContext, input *data.Input, seats int, out *election.Outcome) *electionOutput {
	profile := ectx.Profile
	c2v := ectx.CurrencyToVote
	result := &electionOutput{
		RunID:             ectx.RunID.String(),
		Chain:             snap.Chain,
		At:                snap.At,
		Solver:            out.Solver,
		Seats:             seats,
		Candidates:        len(input.Candidates),
		Voters:            len(input.Voters),
		BalanceIterations: out.BalanceIterations,
		ReducedEdges:      out.ReducedEdges,
	}
	for i := range out.Score {
		result.Score[i] = out.Score[i].Dec()
	}
	for i, w := range out.Winners {
		support := out.Supports[w.Who]
		wo := winnerOutput{
			Rank:     i + 1,
			Who:      profile.Address(w.Who),
			Approval: c2v.SupportToCurrency(&w.Approval),
			Total:    c2v.SupportToCurrency(&support.Total),
			Own:      c2v.ToCurrency(support.SelfStake(w.Who)),
		}
		for _, b := range support.Voters {
			if b.Who == w.Who {
				continue
			}
			wo.Voters = append(wo.Voters, backingOutput{Who: profile.Address(b.Who), Stake: c2v.ToCurrency(b.Stake)})
		}
		result.Winners = append(result.Winners, wo)
	}
	return result
}

func renderWinners(w io.Writer, profile *config.ChainProfile, result *electionOutput) {
	table := tablewriter.NewWriter(w)
	header := []string{"#", "Winner", "Total", "Own", "Backers"}
	withRole := len(result.Winners) > 0 && result.Winners[0].Role != ""
	if withRole {
		header = append(header, "Role")
	}
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, wo := range result.Winners {
		row := []string{
			strconv.Itoa(wo.Rank),
			wo.Who,
			profile.FormatBalance(wo.Total),
			profile.FormatBalance(wo.Own),
			strconv.Itoa(len(wo.Voters)),
		}
		if withRole {
			row = append(row, wo.Role)
		}
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(w, "solver %s, %d candidates, %d voters, score [%s, %s, %s]\n",
		result.Solver, result.Candidates, result.Voters, result.Score[0], result.Score[1], result.Score[2])
}

func renderComparison(w io.Writer, outcomes []*election.Outcome) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Solver", "Min support", "Total support", "Sum of squares"})
	for i, o := range outcomes {
		table.Append([]string{strconv.Itoa(i + 1), o.Solver, o.Score[0].Dec(), o.Score[1].Dec(), o.Score[2].Dec()})
	}
	table.Render()
}
