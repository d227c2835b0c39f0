package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"twap_go/internal/domain"
)

// Journal is the append-only audit log of accepted orders and simulated
// fills. The in-memory store stays authoritative; the journal exists so
// a run's activity survives the process for later inspection.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) the SQLite journal with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			token_id TEXT PRIMARY KEY,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			limit_price REAL NOT NULL,
			steps INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_id TEXT NOT NULL REFERENCES orders(token_id),
			step INTEGER NOT NULL,
			price REAL NOT NULL,
			quantity REAL NOT NULL,
			filled_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fills table: %w", err)
	}

	return &Journal{db: db}, nil
}

// RecordOrder journals an accepted order.
func (j *Journal) RecordOrder(ctx context.Context, o *domain.Order) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO orders (token_id, exchange, symbol, side, quantity, limit_price, steps, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		o.TokenID, o.Exchange, o.Symbol, string(o.Side), o.Quantity, o.LimitPrice, o.Steps, o.CreatedUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// RecordFill journals one simulated slice execution.
func (j *Journal) RecordFill(ctx context.Context, token string, ex domain.Execution) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO fills (token_id, step, price, quantity, filled_at) VALUES (?, ?, ?, ?, ?)",
		token, ex.Step, ex.Price, ex.Quantity, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// OrderFills returns the journaled executions for a token in fill order.
func (j *Journal) OrderFills(ctx context.Context, token string) ([]domain.Execution, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT step, price, quantity FROM fills WHERE token_id = ? ORDER BY id ASC",
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Execution
	for rows.Next() {
		var ex domain.Execution
		if err := rows.Scan(&ex.Step, &ex.Price, &ex.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		fills = append(fills, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return fills, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
