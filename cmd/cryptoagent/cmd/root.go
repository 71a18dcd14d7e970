// Package cmd holds the cryptoagent command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryptoagent",
	Short: "Automated crypto trading agent",
	Long: `cryptoagent polls spot prices, derives SMA, RSI and MACD indicators,
and places limit orders when the configured buy and sell rules fire.

Trading is suspended automatically while the price data has gaps or goes
stale. With debug_enabled set, a paper broker and a synthetic price feed
replace every external call.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
