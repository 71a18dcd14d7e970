package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptoagent/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  cryptoagent config init --output cryptoagent.yaml
  cryptoagent config validate --file cryptoagent.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file the same way "run" does, including .env and
environment overrides, and report every problem found.`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "cryptoagent.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "Credentials are read from the environment (CRYPTOAGENT_USERNAME, CRYPTOAGENT_PASSWORD, CRYPTOAGENT_TOTP_SECRET) or .env.")
	fmt.Fprintf(out, "Run with:\n  cryptoagent run --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	mode := "live"
	if cfg.DebugEnabled {
		mode = "debug (paper broker, synthetic prices)"
	}
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Mode: %s, trades enabled: %t\n", mode, cfg.TradesEnabled)
	fmt.Fprintf(out, "  Strategies: buy=%s sell=%s\n", cfg.Strategies.Buy, cfg.Strategies.Sell)
	for _, in := range cfg.Instruments {
		fmt.Fprintf(out, "  Instrument: %s -> %s\n", in.Pair, in.Symbol)
	}
	fmt.Fprintf(out, "  Storage: %s\n", cfg.Storage.Backend)
	return nil
}
