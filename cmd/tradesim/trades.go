package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradesim/internal/execution"
)

func newTradesCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List the most recent journaled fills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("tradesim-trades")
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.JournalPath); err != nil {
				return fmt.Errorf("no trade journal at %s", cfg.JournalPath)
			}
			journal, err := execution.NewJournal(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			trades, err := journal.GetTrades(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(trades)
			}
			for _, t := range trades {
				fmt.Println(t)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of fills to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
