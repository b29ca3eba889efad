package tradelog

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"don-futures/internal/types"
)

func sampleTrade(id string, exit time.Time, pnl float64) types.Trade {
	return types.Trade{
		ID: id, Symbol: "MNQ", Direction: types.Long, EntryReason: types.ReasonFailedTestFade,
		EntryPrice: 100, EntryTime: exit.Add(-3 * time.Minute), ExitPrice: 112, ExitTime: exit,
		ExitReason: types.ExitTarget, Size: 1, PnLPoints: 12, PnLDollars: pnl, Commission: 4,
	}
}

func TestRecordAndReadDay(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	s := New(t.TempDir(), ny)
	ctx := context.Background()

	day := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC) // still 3/4 in New York
	next := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	for _, tr := range []types.Trade{sampleTrade("a", day, 20), sampleTrade("b", late, -20), sampleTrade("c", next, 20)} {
		if err := s.Record(ctx, tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, skipped, err := s.ReadDay(day)
	if err != nil || skipped != 0 {
		t.Fatalf("ReadDay = %v, skipped %d", err, skipped)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("trades for 2025-03-04 = %+v", got)
	}
	if got[0].PnLDollars != 20 || !got[0].ExitTime.Equal(day) || got[0].Direction != types.Long {
		t.Fatalf("round-tripped trade = %+v", got[0])
	}
}

func TestReadDaySkipsBadLinesAndMissingFile(t *testing.T) {
	s := New(t.TempDir(), time.UTC)
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	if got, _, err := s.ReadDay(day); err != nil || got != nil {
		t.Fatalf("missing file: %v, %v", got, err)
	}

	if err := s.Record(context.Background(), sampleTrade("a", day, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	f, _ := os.OpenFile(s.DayPath(day), os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("{not json\n\n")
	f.Close()

	got, skipped, err := s.ReadDay(day)
	if err != nil || len(got) != 1 || skipped != 1 {
		t.Fatalf("ReadDay = %d trades, %d skipped, %v", len(got), skipped, err)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, time.UTC)
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	old := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 19, 15, 0, 0, 0, time.UTC)
	ctx := context.Background()
	s.Record(ctx, sampleTrade("old", old, 1))
	s.Record(ctx, sampleTrade("new", recent, 1))
	os.Chtimes(s.DayPath(old), old, old)
	os.Chtimes(s.DayPath(recent), recent, recent)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644)
	os.Chtimes(filepath.Join(dir, "notes.txt"), old, old)

	n, err := s.CompressOlder(7, now)
	if err != nil || n != 1 {
		t.Fatalf("CompressOlder = %d, %v", n, err)
	}
	if _, err := os.Stat(s.DayPath(old)); !os.IsNotExist(err) {
		t.Fatalf("original day file still present")
	}
	if _, err := os.Stat(s.DayPath(recent)); err != nil {
		t.Fatalf("recent day file compressed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("unrelated file touched: %v", err)
	}

	f, err := os.Open(s.DayPath(old) + ".gz")
	if err != nil {
		t.Fatalf("open gz: %v", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	b, _ := io.ReadAll(gr)
	if !strings.Contains(string(b), `"id":"old"`) {
		t.Fatalf("compressed content = %s", b)
	}

	if n, err := s.CompressOlder(0, now); n != 0 || err != nil {
		t.Fatalf("retention 0 must be a no-op")
	}
}
