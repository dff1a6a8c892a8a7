package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"tradesim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBatchSize = 500

// BarStore persists candles per ticker in a local SQLite database.
// One writer connection; WAL lets concurrent readers proceed.
type BarStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the bar database at path.
func Open(path string) (*BarStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := createBarSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened bar store at %s", path)
	return &BarStore{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func createBarSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			ticker TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER,
			PRIMARY KEY (ticker, ts)
		);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *BarStore) DB() *sql.DB { return s.db }

// WriteBars upserts candles for ticker in batched transactions.
func (s *BarStore) WriteBars(ctx context.Context, ticker string, candles []model.Candle) error {
	ticker = strings.ToUpper(ticker)
	for start := 0; start < len(candles); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(candles) {
			end = len(candles)
		}
		if err := s.insertBatch(ctx, ticker, candles[start:end]); err != nil {
			return fmt.Errorf("sqlite insert bars: %w", err)
		}
	}
	return nil
}

func (s *BarStore) insertBatch(ctx context.Context, ticker string, candles []model.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (ticker, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, ticker, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ReadBars returns ticker's candles with from <= ts < to, ascending.
// A zero to reads everything after from.
func (s *BarStore) ReadBars(ctx context.Context, ticker string, from, to time.Time) ([]model.Candle, error) {
	hi := int64(1<<63 - 1)
	if !to.IsZero() {
		hi = to.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE ticker = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, strings.ToUpper(ticker), from.Unix(), hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var vol sql.NullInt64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = vol.Int64
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// CountBars reports how many candles are stored for ticker.
func (s *BarStore) CountBars(ctx context.Context, ticker string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars WHERE ticker = ?`, strings.ToUpper(ticker)).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *BarStore) Close() error {
	return s.db.Close()
}
