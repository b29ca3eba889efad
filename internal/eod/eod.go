// Package eod writes the end-of-day report: one CSV per trading day with a
// row per exit reason and a total row.
package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/results"
	"don-futures/internal/session"
	"don-futures/internal/tradelog"
	"don-futures/internal/types"
)

var header = []string{"exit_reason", "trades", "pnl_points", "net_dollars", "win_rate", "commission", "max_drawdown"}

type summarizer struct {
	log  *tradelog.Sink
	gate *session.Gate
}

var _ interfaces.EodSummarizer = (*summarizer)(nil)

// NewSummarizer reports on trades recorded by log. gate decides when the
// day's session is over.
func NewSummarizer(log *tradelog.Sink, gate *session.Gate) interfaces.EodSummarizer {
	return &summarizer{log: log, gate: gate}
}

func (s *summarizer) csvPath(day time.Time) string {
	return filepath.Join(s.log.Dir(), "eod", day.In(s.gate.Location()).Format("2006-01-02")+".csv")
}

// SummarizeDay returns an empty path and no error when the day has no
// trades.
func (s *summarizer) SummarizeDay(day time.Time) (string, error) {
	trades, skipped, err := s.log.ReadDay(day)
	if err != nil {
		return "", fmt.Errorf("read trade log: %w", err)
	}
	if skipped > 0 {
		logger.Warn(context.Background(), "Skipped unreadable trade log lines", "day", day.Format("2006-01-02"), "lines", skipped)
	}
	if len(trades) == 0 {
		return "", nil
	}

	agg := results.New()
	for _, t := range trades {
		agg.Add(t)
	}
	sum := agg.Summary()

	outPath := s.csvPath(day)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, reason := range types.ExitReasons {
		st, ok := sum.ByExit[reason]
		if !ok {
			continue
		}
		rec := []string{
			string(reason),
			strconv.Itoa(st.Count),
			money(st.PnLPoints),
			money(st.NetDollars),
			"", "", "",
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	total := []string{
		"TOTAL",
		strconv.Itoa(sum.Trades),
		money(sum.GrossPoints),
		money(sum.NetDollars),
		fmt.Sprintf("%.4f", sum.WinRate),
		money(sum.Commission),
		money(sum.MaxDrawdown),
	}
	if err := w.Write(total); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

// ShouldRunNow is true once the session is closed on a day that has a trade
// log and no report yet.
func (s *summarizer) ShouldRunNow(now time.Time) (bool, string) {
	outPath := s.csvPath(now)
	if s.gate.IsOpen(now) {
		return false, outPath
	}
	if _, err := os.Stat(s.log.DayPath(now)); err != nil {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
