package feed

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"don-futures/internal/logger"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseSource streams bars from an OHLCV table ordered by open time.
// The table needs symbol, open_time_ms, open, high, low, close and volume
// columns.
type ClickHouseSource struct {
	conn     driver.Conn
	rows     driver.Rows
	query    string
	symbol   string
	from, to uint64
	count    int64
}

func NewClickHouseSource(ctx context.Context, cfg store.ClickHouseConfig, password string) (*ClickHouseSource, error) {
	if !identifier.MatchString(cfg.Database) || !identifier.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse database or table name %q.%q", cfg.Database, cfg.Table)
	}
	from, to, err := queryRange(cfg.From, cfg.To)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{Database: cfg.Database, Username: cfg.Username, Password: password},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	query := fmt.Sprintf(`
SELECT open_time_ms, toFloat64(open), toFloat64(high), toFloat64(low), toFloat64(close), toFloat64(volume)
FROM %s.%s
WHERE symbol = ? AND open_time_ms >= ? AND open_time_ms < ?
ORDER BY open_time_ms`, cfg.Database, cfg.Table)

	return &ClickHouseSource{
		conn:   conn,
		query:  query,
		symbol: cfg.Symbol,
		from:   from,
		to:     to,
	}, nil
}

func queryRange(from, to string) (uint64, uint64, error) {
	lo, hi := uint64(0), uint64(math.MaxInt64)
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return 0, 0, fmt.Errorf("clickhouse.from: %w", err)
		}
		lo = uint64(t.UnixMilli())
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return 0, 0, fmt.Errorf("clickhouse.to: %w", err)
		}
		hi = uint64(t.UnixMilli())
	}
	if hi <= lo {
		return 0, 0, fmt.Errorf("clickhouse range is empty: from %s to %s", from, to)
	}
	return lo, hi, nil
}

// Next runs the query on first use and then walks the result set.
func (s *ClickHouseSource) Next(ctx context.Context) (types.Bar, error) {
	if s.rows == nil {
		rows, err := s.conn.Query(ctx, s.query, s.symbol, s.from, s.to)
		if err != nil {
			return types.Bar{}, fmt.Errorf("query bars: %w", err)
		}
		s.rows = rows
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return types.Bar{}, fmt.Errorf("read bars: %w", err)
		}
		logger.Info(ctx, "ClickHouse bar stream finished", "symbol", s.symbol, "bars", s.count)
		return types.Bar{}, io.EOF
	}
	var (
		openMs             uint64
		o, h, l, c, volume float64
	)
	if err := s.rows.Scan(&openMs, &o, &h, &l, &c, &volume); err != nil {
		return types.Bar{}, fmt.Errorf("scan bar: %w", err)
	}
	s.count++
	return types.Bar{
		Time:   time.UnixMilli(int64(openMs)).UTC(),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: volume,
	}, nil
}

func (s *ClickHouseSource) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return s.conn.Close()
}
