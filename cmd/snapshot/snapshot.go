// Package snapshot implements the snapshot sub-command.
package snapshot

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cmd/common"
	"github.com/substrate-debug-kit/offline-election/storage/snapshot"
)

const moduleName = "snapshot"

var (
	modules []string
	output  string

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Build a state snapshot and show its size per module",
		Long: "Scrapes the given modules (the whole state without --module) at the selected block. " +
			"With a cache configured, the snapshot is stored for later election runs.",
		RunE: runSnapshot,
	}
)

// Modules the election commands read, used to name usage rows.
var knownModules = []string{
	"System", "Balances", "Staking", "Session", "PhragmenElection", "Elections",
	"Council", "Democracy", "Treasury", "Timestamp", "Babe", "Grandpa", "Indices",
}

type usageOutput struct {
	Module     string `json:"module"`
	Prefix     string `json:"prefix"`
	Keys       int    `json:"keys"`
	KeyBytes   int    `json:"key_bytes"`
	ValueBytes int    `json:"value_bytes"`
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := common.Prepare(cmd)
	if err != nil {
		return err
	}
	logger := common.RootLogger().WithModule(moduleName)
	if len(modules) > 0 {
		cfg.Source.Modules = modules
	}

	snap, _, err := common.LoadSnapshot(ctx, cfg, nil)
	if err != nil {
		return err
	}

	usage := snapshot.Usage(snap, append(append([]string{}, snap.Modules...), knownModules...))
	out := make([]usageOutput, 0, len(usage))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Module", "Keys", "Size"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	var keys, size int
	for _, u := range usage {
		name := u.Module
		if name == "" {
			name = u.Prefix.String()
		}
		table.Append([]string{name, humanize.Comma(int64(u.Keys)), humanize.Bytes(uint64(u.Bytes()))})
		out = append(out, usageOutput{
			Module:     u.Module,
			Prefix:     u.Prefix.String(),
			Keys:       u.Keys,
			KeyBytes:   u.KeyBytes,
			ValueBytes: u.ValueBytes,
		})
		keys += u.Keys
		size += u.Bytes()
	}
	table.SetFooter([]string{"total", strconv.Itoa(keys), humanize.Bytes(uint64(size))})
	table.Render()
	fmt.Printf("chain %s at %s\n", snap.Chain, snap.At)

	if output != "" {
		if err := common.WriteJSON(output, out); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		logger.Info("wrote usage", "path", output)
	}
	return nil
}

// Register registers the snapshot sub-command.
func Register(parentCmd *cobra.Command) {
	snapshotCmd.Flags().StringSliceVar(&modules, "module", nil, "module to include, repeatable")
	snapshotCmd.Flags().StringVar(&output, "output", "", "write the usage as JSON to this path")
	parentCmd.AddCommand(snapshotCmd)
}
