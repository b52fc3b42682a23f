// Package cmd implements commands for the offline-election executable.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cmd/common"
	"github.com/substrate-debug-kit/offline-election/cmd/election"
	"github.com/substrate-debug-kit/offline-election/cmd/snapshot"
	"github.com/substrate-debug-kit/offline-election/log"
)

var rootCmd = &cobra.Command{
	Use:           "offline-election",
	Short:         "Run elections offline against a snapshot of chain state",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		f := cmd.Flags()
		common.GlobalFlags.LogLevelChanged = f.Changed("log-level")
		common.GlobalFlags.LogFormatChanged = f.Changed("log-format")
	},
}

// Execute spawns the main entry point after handing the config file.
func Execute() {
	// Debug hook. If we receive SIGUSR1, dump all goroutines.
	go dumpGoroutinesOnSignal(syscall.SIGUSR1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		common.RootLogger().Error("command failed", "err", err)
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&common.GlobalFlags.ConfigFile, "config", "", "path to the config.yml file")
	flags.StringVar(&common.GlobalFlags.URI, "uri", "", "node endpoint (ws, wss, http or https)")
	flags.StringVar(&common.GlobalFlags.At, "at", "", "block hash or number, defaults to the finalized head")
	flags.StringVar(&common.GlobalFlags.Network, "network", "", "chain profile to use instead of detecting it")
	common.GlobalFlags.LogLevel = log.LevelInfo
	flags.Var(&common.GlobalFlags.LogLevel, "log-level", "log level")
	flags.Var(&common.GlobalFlags.LogFormat, "log-format", "log format")

	for _, f := range []func(*cobra.Command){
		election.Register,
		snapshot.Register,
	} {
		f(rootCmd)
	}
}

// Starts listening for the specified signals, and logs a dump of all
// goroutines when the process receives one of those signals.
func dumpGoroutinesOnSignal(signals ...os.Signal) {
	logger := log.NewDefaultLogger("toplevel")
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	for range c {
		b := bytes.NewBufferString("")
		_ = pprof.Lookup("goroutine").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: all goroutines", "goroutines_all", b.String())
	}
}
