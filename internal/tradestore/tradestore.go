// Package tradestore persists closed trades to Postgres.
package tradestore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"don-futures/internal/interfaces"
	"don-futures/internal/types"
)

const writeTimeout = 4 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS futures_trades (
    id           TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    direction    SMALLINT NOT NULL,
    entry_reason TEXT NOT NULL,
    entry_price  DOUBLE PRECISION NOT NULL,
    entry_time   TIMESTAMPTZ NOT NULL,
    exit_price   DOUBLE PRECISION NOT NULL,
    exit_time    TIMESTAMPTZ NOT NULL,
    exit_reason  TEXT NOT NULL,
    size         INTEGER NOT NULL,
    bars_held    INTEGER NOT NULL,
    mfe          DOUBLE PRECISION NOT NULL,
    pnl_points   DOUBLE PRECISION NOT NULL,
    pnl_dollars  DOUBLE PRECISION NOT NULL,
    commission   DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS futures_trades_exit_time_idx ON futures_trades (exit_time);
`

// A replayed trade keeps its deterministic ID, so the insert is a no-op.
const insertSQL = `
INSERT INTO futures_trades (
    id, symbol, direction, entry_reason,
    entry_price, entry_time, exit_price, exit_time, exit_reason,
    size, bars_held, mfe,
    pnl_points, pnl_dollars, commission
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING
`

const recentSQL = `
SELECT id, symbol, direction, entry_reason,
       entry_price, entry_time, exit_price, exit_time, exit_reason,
       size, bars_held, mfe,
       pnl_points, pnl_dollars, commission
FROM futures_trades
ORDER BY exit_time DESC
LIMIT $1
`

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ dbtx = (*pgxpool.Pool)(nil)

type PGSink struct {
	db dbtx
}

var _ interfaces.TradeSink = (*PGSink)(nil)

// Connect opens a pool on databaseURL and makes sure the table exists.
func Connect(ctx context.Context, databaseURL string) (*PGSink, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

func New(db dbtx) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create futures_trades: %w", err)
	}
	return nil
}

func (s *PGSink) Record(ctx context.Context, t types.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx, insertSQL,
		t.ID,
		t.Symbol,
		int(t.Direction),
		string(t.EntryReason),
		t.EntryPrice,
		t.EntryTime,
		t.ExitPrice,
		t.ExitTime,
		string(t.ExitReason),
		t.Size,
		t.BarsHeld,
		t.MaxFavorableExcursion,
		t.PnLPoints,
		t.PnLDollars,
		t.Commission,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// Recent returns up to limit trades, newest exit first.
func (s *PGSink) Recent(ctx context.Context, limit int) ([]types.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var (
			t           types.Trade
			dir         int
			entryReason string
			exitReason  string
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &dir, &entryReason,
			&t.EntryPrice, &t.EntryTime, &t.ExitPrice, &t.ExitTime, &exitReason,
			&t.Size, &t.BarsHeld, &t.MaxFavorableExcursion,
			&t.PnLPoints, &t.PnLDollars, &t.Commission,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Direction = types.Direction(dir)
		t.EntryReason = types.SignalReason(entryReason)
		t.ExitReason = types.ExitReason(exitReason)
		out = append(out, t)
	}
	return out, rows.Err()
}
