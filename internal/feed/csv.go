package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"don-futures/internal/logger"
	"don-futures/internal/types"
)

type csvOptions struct {
	resample time.Duration
	loc      *time.Location
}

type CSVOption func(*csvOptions)

// WithResample aggregates bars into buckets of the given number of minutes.
func WithResample(minutes int) CSVOption {
	return func(o *csvOptions) {
		if minutes > 1 {
			o.resample = time.Duration(minutes) * time.Minute
		}
	}
}

// WithLocation sets the zone for timestamps that carry no offset. The
// default is UTC.
func WithLocation(loc *time.Location) CSVOption {
	return func(o *csvOptions) { o.loc = loc }
}

var timeColumns = []string{"ts_event", "timestamp", "datetime", "time", "date"}

// LoadCSV reads a whole OHLCV file. Headers are matched case-insensitively;
// the time column may be ts_event (Databento), timestamp, datetime, time or
// date, holding RFC 3339 text or unix seconds, milliseconds, microseconds
// or nanoseconds. Volume is optional. Where several rows share a timestamp
// (one per contract month) the highest-volume row is kept.
func LoadCSV(path string, opts ...CSVOption) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts...)
}

// NewCSVSource loads path into a SliceSource.
func NewCSVSource(path string, opts ...CSVOption) (*SliceSource, error) {
	bars, err := LoadCSV(path, opts...)
	if err != nil {
		return nil, err
	}
	return NewSliceSource(bars), nil
}

type csvColumns struct {
	ts, open, high, low, close, volume int
}

func ReadCSV(r io.Reader, opts ...CSVOption) ([]types.Bar, error) {
	o := &csvOptions{loc: time.UTC}
	for _, opt := range opts {
		opt(o)
	}

	// BOMOverride handles UTF-16 exports as well as a UTF-8 BOM.
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		bars    []types.Bar
		byTime  = make(map[int64]int)
		skipped int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		b, err := parseRecord(rec, cols, o.loc)
		if err != nil {
			skipped++
			continue
		}
		key := b.Time.UnixNano()
		if i, ok := byTime[key]; ok {
			if b.Volume > bars[i].Volume {
				bars[i] = b
			}
			continue
		}
		byTime[key] = len(bars)
		bars = append(bars, b)
	}
	if skipped > 0 {
		logger.Warn(context.Background(), "Skipped malformed csv rows", "rows", skipped)
	}
	if len(bars) == 0 {
		return nil, errors.New("no bars parsed from csv")
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if o.resample > 0 {
		bars = Resample(bars, o.resample)
	}
	return bars, nil
}

func columnIndex(header []string) (csvColumns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := csvColumns{ts: -1, volume: -1}
	for _, name := range timeColumns {
		if i, ok := idx[name]; ok {
			cols.ts = i
			break
		}
	}
	if cols.ts < 0 {
		return cols, fmt.Errorf("csv has no time column, want one of %v", timeColumns)
	}
	for name, dst := range map[string]*int{"open": &cols.open, "high": &cols.high, "low": &cols.low, "close": &cols.close} {
		i, ok := idx[name]
		if !ok {
			return cols, fmt.Errorf("missing required column: %s", name)
		}
		*dst = i
	}
	if i, ok := idx["volume"]; ok {
		cols.volume = i
	}
	return cols, nil
}

func parseRecord(rec []string, cols csvColumns, loc *time.Location) (types.Bar, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(strings.Trim(rec[i], `"`))
	}
	ts, err := parseTimestamp(field(cols.ts), loc)
	if err != nil {
		return types.Bar{}, err
	}
	b := types.Bar{Time: ts}
	for _, p := range []struct {
		col int
		dst *float64
	}{{cols.open, &b.Open}, {cols.high, &b.High}, {cols.low, &b.Low}, {cols.close, &b.Close}} {
		if *p.dst, err = strconv.ParseFloat(field(p.col), 64); err != nil {
			return types.Bar{}, err
		}
	}
	if v := field(cols.volume); v != "" {
		b.Volume, _ = strconv.ParseFloat(v, 64)
	}
	return b, nil
}

var (
	zonedLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05.999999999Z07:00"}
	naiveLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}
)

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch digits := len(strings.TrimPrefix(s, "-")); {
		case digits >= 18:
			return time.Unix(0, n).UTC(), nil
		case digits >= 15:
			return time.UnixMicro(n).UTC(), nil
		case digits >= 12:
			return time.UnixMilli(n).UTC(), nil
		default:
			return time.Unix(n, 0).UTC(), nil
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Resample merges sorted bars into buckets of width d, aligned to UTC
// midnight when d divides a day. Each output bar is stamped with its
// bucket start.
func Resample(bars []types.Bar, d time.Duration) []types.Bar {
	if d <= 0 || len(bars) == 0 {
		return bars
	}
	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		bucket := b.Time.Truncate(d)
		if n := len(out); n > 0 && out[n-1].Time.Equal(bucket) {
			agg := &out[n-1]
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume += b.Volume
			continue
		}
		b.Time = bucket
		out = append(out, b)
	}
	return out
}
