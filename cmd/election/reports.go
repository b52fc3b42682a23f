package election

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cmd/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/log"
)

var (
	danglingCmd = &cobra.Command{
		Use:   "dangling-nominators",
		Short: "List nominations voided by a later slash of their target",
		RunE:  runDangling,
	}

	currentCmd = &cobra.Command{
		Use:   "current",
		Short: "Show the exposures of the active validator set",
		RunE:  runCurrent,
	}
)

type droppedOutput struct {
	Target           string `json:"target"`
	LastNonzeroSlash uint32 `json:"last_nonzero_slash"`
}

type danglingOutput struct {
	Nominator   string          `json:"nominator"`
	SubmittedIn uint32          `json:"submitted_in"`
	Kept        int             `json:"kept"`
	Dropped     []droppedOutput `json:"dropped"`
}

func runDangling(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := common.Prepare(cmd)
	if err != nil {
		return err
	}
	logger := common.RootLogger().WithModule(moduleName)
	snap, profile, err := common.LoadSnapshot(ctx, cfg, func(*config.ChainProfile) []string {
		return []string{"Staking"}
	})
	if err != nil {
		return err
	}
	report, err := data.NewStaking(snap, logger).WithLegacyStorage(profile.LegacyStorage).DanglingNominations(ctx)
	if err != nil {
		return err
	}

	out := make([]danglingOutput, 0, len(report.Dangling))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Nominator", "Submitted in", "Kept", "Dropped target", "Slashed in"})
	table.SetAutoMergeCells(true)
	for _, d := range report.Dangling {
		do := danglingOutput{
			Nominator:   profile.Address(d.Nominator),
			SubmittedIn: d.SubmittedIn,
			Kept:        len(d.Kept),
		}
		for _, t := range d.Dropped {
			do.Dropped = append(do.Dropped, droppedOutput{Target: profile.Address(t.Target), LastNonzeroSlash: t.LastNonzeroSlash})
			table.Append([]string{
				do.Nominator,
				strconv.FormatUint(uint64(d.SubmittedIn), 10),
				strconv.Itoa(do.Kept),
				profile.Address(t.Target),
				strconv.FormatUint(uint64(t.LastNonzeroSlash), 10),
			})
		}
		out = append(out, do)
	}
	table.Render()
	fmt.Printf("%d nominators fully effective, %d with dangling votes\n", report.Effective, len(report.Dangling))

	return writeOutput(logger, out)
}

type exposureOutput struct {
	Validator  string               `json:"validator"`
	Total      string               `json:"total"`
	Own        string               `json:"own"`
	Nominators []individualExposure `json:"nominators"`
}

type individualExposure struct {
	Who   string `json:"who"`
	Value string `json:"value"`
}

func runCurrent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := common.Prepare(cmd)
	if err != nil {
		return err
	}
	logger := common.RootLogger().WithModule(moduleName)
	snap, profile, err := common.LoadSnapshot(ctx, cfg, func(*config.ChainProfile) []string {
		return []string{"Staking", "Session"}
	})
	if err != nil {
		return err
	}
	era, exposures, err := data.NewStaking(snap, logger).WithLegacyStorage(profile.LegacyStorage).CurrentExposures(ctx)
	if err != nil {
		return err
	}

	out := make([]exposureOutput, 0, len(exposures))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Validator", "Total", "Own", "Nominators"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, e := range exposures {
		eo := exposureOutput{
			Validator: profile.Address(e.Who),
			Total:     profile.FormatBalance(e.Exposure.Total),
			Own:       profile.FormatBalance(e.Exposure.Own),
		}
		for _, n := range e.Exposure.Others {
			eo.Nominators = append(eo.Nominators, individualExposure{Who: profile.Address(n.Who), Value: profile.FormatBalance(n.Value)})
		}
		table.Append([]string{strconv.Itoa(i + 1), eo.Validator, eo.Total, eo.Own, strconv.Itoa(len(eo.Nominators))})
		out = append(out, eo)
	}
	table.Render()
	fmt.Printf("era %d, %d validators\n", era, len(exposures))

	return writeOutput(logger, out)
}

func writeOutput(logger *log.Logger, v interface{}) error {
	if runFlags.Output == "" {
		return nil
	}
	if err := common.WriteJSON(runFlags.Output, v); err != nil {
		return fmt.Errorf("writing %s: %w", runFlags.Output, err)
	}
	logger.Info("wrote result", "path", runFlags.Output)
	return nil
}
