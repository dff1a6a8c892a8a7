package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradesim/internal/markethours"
)

func newMarketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show whether the regular session is open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("tradesim-market")
			if err != nil {
				return err
			}
			loc, err := markethours.LoadLocation(cfg.Timezone)
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			fmt.Printf("%s  %s\n", now.Format("Mon 2006-01-02 15:04:05 MST"), markethours.StatusString(now))
			return nil
		},
	}
}
