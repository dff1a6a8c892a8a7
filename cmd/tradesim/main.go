// Command tradesim backtests and simulates the SMA crossover strategy over
// historical minute bars.
//
// Usage:
//
//	tradesim backtest AAPL MSFT
//	tradesim sim --source=sqlite AAPL
//	tradesim import AAPL data/aapl.csv
//	tradesim trades --limit 20
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	rootCmd := &cobra.Command{
		Use:           "tradesim",
		Short:         "Backtest and simulate equity trading strategies",
		Long:          `Replays historical candles through an SMA crossover strategy against an instant-fill or a settlement-delayed broker and reports the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tradesim.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd("backtest", "Run tickers against an instant-fill broker"),
		newRunCmd("sim", "Run tickers against a T+2 settlement broker with commission"),
		newImportCmd(),
		newTradesCmd(),
		newMarketCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tradesim:", err)
		os.Exit(1)
	}
}
