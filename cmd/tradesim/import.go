package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tradesim/internal/markethours"
	"tradesim/internal/pricesource"
	sqlitestore "tradesim/internal/store/sqlite"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import TICKER FILE.csv",
		Short: "Load a time,open,high,low,close,volume CSV into the bar store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importCSV(cmd.Context(), strings.ToUpper(args[0]), args[1])
		},
	}
}

func importCSV(ctx context.Context, ticker, path string) error {
	cfg, lg, err := loadConfig("tradesim-import")
	if err != nil {
		return err
	}
	loc, err := markethours.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	candles, err := pricesource.ReadCSV(f, loc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := ensureDir(cfg.SQLitePath); err != nil {
		return err
	}
	bars, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer bars.Close()

	if err := bars.WriteBars(ctx, ticker, candles); err != nil {
		return err
	}
	total, err := bars.CountBars(ctx, ticker)
	if err != nil {
		return err
	}
	lg.Info("import finished",
		slog.String("ticker", ticker),
		slog.String("file", path),
		slog.Int("candles", len(candles)),
		slog.Int("stored", total),
	)
	fmt.Printf("imported %d candles for %s (%d stored)\n", len(candles), ticker, total)
	return nil
}

// ensureDir creates the parent directory of a database file.
func ensureDir(file string) error {
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
