package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cryptoagent/config"
	"cryptoagent/internal/store/sqlite"
)

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List journalled trades from the SQLite store",
	Long: `Print the most recent accepted orders and the realised profit.

Example:
  cryptoagent trades --config cryptoagent.yaml --limit 20`,
	RunE: runTrades,
}

var (
	tradesConfigPath string
	tradesLimit      int
)

func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.Flags().StringVarP(&tradesConfigPath, "config", "c", "", "path to config file")
	tradesCmd.Flags().IntVarP(&tradesLimit, "limit", "n", 50, "number of trades to show")
}

func runTrades(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(tradesConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		return fmt.Errorf("trades: journal is only queryable on the sqlite backend, got %q", cfg.Storage.Backend)
	}

	st, err := sqlite.Open(cfg.Storage.SQLitePath, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	j := st.Journal()
	trades, err := j.Trades(ctx, tradesLimit)
	if err != nil {
		return err
	}
	profit, err := j.RealizedProfit(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSIDE\tINSTRUMENT\tQUANTITY\tPRICE\tPROFIT\tREASON\tORDER")
	for _, t := range trades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Time.Format("2006-01-02 15:04:05"), t.Side, t.Instrument,
			t.Quantity, t.Price, t.Profit.StringFixed(2), t.Reason, t.OrderID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d trades shown, realised profit %s\n", len(trades), profit.StringFixed(2))
	return nil
}
