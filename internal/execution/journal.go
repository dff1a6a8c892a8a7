// Package execution records simulated fills to a SQLite trade journal so
// runs can be inspected after the fact.
package execution

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Fill is one executed buy or sell inside a run.
type Fill struct {
	RunID    string
	Mode     string // backtest or sim
	Strategy string
	Side     string // BUY or SELL
	Ticker   string
	Shares   int
	Price    float64
	Return   float64 // realized P&L; zero on buys
	FilledAt time.Time
}

// Journal persists fills to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		mode        TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		side        TEXT NOT NULL,
		ticker      TEXT NOT NULL,
		shares      INTEGER NOT NULL,
		price       REAL NOT NULL,
		pnl         REAL DEFAULT 0,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (run_id, mode, strategy, side, ticker, shares, price, pnl, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.RunID,
		fill.Mode,
		fill.Strategy,
		fill.Side,
		fill.Ticker,
		fill.Shares,
		fill.Price,
		fill.Return,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	Mode     string  `json:"mode"`
	Strategy string  `json:"strategy"`
	Side     string  `json:"side"`
	Ticker   string  `json:"ticker"`
	Shares   int64   `json:"shares"`
	Price    float64 `json:"price"`
	Return   float64 `json:"pnl"`
	FilledAt string  `json:"filled_at"`
}

func (t TradeRecord) String() string {
	return fmt.Sprintf("%-5d %s %-8s %-4s %-6s %5d @ %-10.4f pnl %+.4f  %s",
		t.ID, t.FilledAt, t.Mode, t.Side, t.Ticker, t.Shares, t.Price, t.Return, t.RunID)
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, mode, strategy, side, ticker, shares, price, pnl, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.Mode, &t.Strategy, &t.Side, &t.Ticker,
			&t.Shares, &t.Price, &t.Return, &t.FilledAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
