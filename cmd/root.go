package cmd

import (
	"context"

	"github.com/omniarb/arbengine/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbengine",
	Short: "Flash-loan arbitrage evaluation and execution-decision engine",
	Long: `arbengine scans DEX pool snapshots for cyclic flash-loan arbitrage,
evaluates profitability, optimizes loan amounts and gates every
opportunity through a staged decision pipeline before any signing.`,
}

// ExecuteContext runs the root command, propagating ctx to the scan
// loop for signal-driven shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./arbengine.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initLogging() {
	utils.InitLogger(debug)
}
