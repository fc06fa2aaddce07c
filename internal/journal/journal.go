// Package journal persists executed trades and open positions in SQLite so
// the dashboard's history and position list survive restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tradedeck/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/tradedeck.db"
}

// Journal is a single-writer SQLite store for trades and positions.
type Journal struct {
	db *sql.DB
}

// Ping verifies the database is still reachable, for health checks.
func (j *Journal) Ping(ctx context.Context) error { return j.db.PingContext(ctx) }

// New opens the journal database, enabling WAL mode and creating the schema.
func New(cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps SQLite happy under concurrent handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened database at %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT    NOT NULL,
			product     TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			size        REAL    NOT NULL,
			price       REAL    NOT NULL,
			reason      TEXT    NOT NULL,
			ts          INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS positions (
			id          TEXT PRIMARY KEY,
			product     TEXT    NOT NULL,
			entry_price REAL    NOT NULL,
			size        REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			opened_at   INTEGER NOT NULL
		);
	`)
	return err
}

// RecordTrade appends one executed trade.
func (j *Journal) RecordTrade(t model.Trade) error {
	_, err := j.db.Exec(
		`INSERT INTO trades (position_id, product, side, size, price, reason, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.Product, t.Side, t.Size, t.Price, t.Reason, t.TS.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (j *Journal) ListTrades(limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.Query(
		`SELECT position_id, product, side, size, price, reason, ts FROM trades ORDER BY ts DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var ts int64
		if err := rows.Scan(&t.PositionID, &t.Product, &t.Side, &t.Size, &t.Price, &t.Reason, &ts); err != nil {
			return nil, err
		}
		t.TS = time.Unix(ts, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// AllTrades returns every trade, oldest first, for performance summaries.
func (j *Journal) AllTrades() ([]model.Trade, error) {
	rows, err := j.db.Query(
		`SELECT position_id, product, side, size, price, reason, ts FROM trades ORDER BY ts ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("all trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var ts int64
		if err := rows.Scan(&t.PositionID, &t.Product, &t.Side, &t.Size, &t.Price, &t.Reason, &ts); err != nil {
			return nil, err
		}
		t.TS = time.Unix(ts, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SavePosition inserts or updates an open position.
func (j *Journal) SavePosition(p model.Position) error {
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO positions (id, product, entry_price, size, stop_loss, take_profit, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Product, p.EntryPrice, p.Size, p.StopLoss, p.TakeProfit, p.OpenedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// DeletePosition removes a closed position.
func (j *Journal) DeletePosition(id string) error {
	_, err := j.db.Exec(`DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// LoadPositions returns all open positions, oldest first.
func (j *Journal) LoadPositions() ([]model.Position, error) {
	rows, err := j.db.Query(
		`SELECT id, product, entry_price, size, stop_loss, take_profit, opened_at FROM positions ORDER BY opened_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var openedAt int64
		if err := rows.Scan(&p.ID, &p.Product, &p.EntryPrice, &p.Size, &p.StopLoss, &p.TakeProfit, &openedAt); err != nil {
			return nil, err
		}
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
