// Package tradelog appends closed trades to one JSON-lines file per trading
// day and gzips files past their retention.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/types"
)

const ext = ".jsonl"

// Sink writes trades under dir, one file per day of the trade's exit time
// in loc.
type Sink struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

var _ interfaces.TradeSink = (*Sink)(nil)

func New(dir string, loc *time.Location) *Sink {
	if dir == "" {
		dir = "logs"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sink{dir: dir, loc: loc}
}

func (s *Sink) Dir() string { return s.dir }

// DayPath is the file holding trades that exited on day.
func (s *Sink) DayPath(day time.Time) string {
	return filepath.Join(s.dir, day.In(s.loc).Format("2006-01-02")+ext)
}

func (s *Sink) Record(_ context.Context, t types.Trade) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", t.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.DayPath(t.ExitTime)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, string(b)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadDay returns the trades recorded for day. A missing file is not an
// error; unparseable lines are skipped and counted.
func (s *Sink) ReadDay(day time.Time) (trades []types.Trade, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.DayPath(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var t types.Trade
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			skipped++
			continue
		}
		trades = append(trades, t)
	}
	return trades, skipped, sc.Err()
}

// CompressOlder gzips day files last modified more than retentionDays ago
// and removes the originals. It returns the number of files compressed.
func (s *Sink) CompressOlder(retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	err := filepath.WalkDir(s.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ext {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		n++
		return os.Remove(p)
	})
	return n, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
