// Package session decides when entries are allowed and when open positions
// must be flattened, in the instrument's trading timezone.
package session

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"don-futures/internal/store"
)

type Kind int

const (
	// RTH is a daily window on weekdays, e.g. 09:30-16:00 ET.
	RTH Kind = iota
	// Continuous is one weekly window, e.g. Sunday 18:00 to Friday 17:00 ET.
	Continuous
)

type Gate struct {
	kind     Kind
	loc      *time.Location
	open     int
	close    int
	openDay  time.Weekday
	closeDay time.Weekday
	flatten  time.Duration
}

func New(cfg store.SessionConfig) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load session timezone: %w", err)
	}
	open, err := store.ParseClock(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := store.ParseClock(cfg.Close)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		loc:     loc,
		open:    open,
		close:   closeAt,
		flatten: time.Duration(cfg.AutoFlattenMinutes) * time.Minute,
	}
	switch cfg.Kind {
	case "RTH", "":
		g.kind = RTH
		if open >= closeAt {
			return nil, fmt.Errorf("rth session open %s must be before close %s", cfg.Open, cfg.Close)
		}
	case "CONTINUOUS":
		g.kind = Continuous
		if g.openDay, err = store.ParseWeekday(cfg.OpenWeekday); err != nil {
			return nil, err
		}
		if g.closeDay, err = store.ParseWeekday(cfg.CloseWeekday); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown session kind %q", cfg.Kind)
	}
	return g, nil
}

func (g *Gate) Location() *time.Location { return g.loc }

func (g *Gate) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, g.loc)
}

func weekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

// bounds returns the session that contains t, or ok=false when t falls
// between sessions.
func (g *Gate) bounds(t time.Time) (open, close time.Time, ok bool) {
	l := t.In(g.loc)
	if g.kind == RTH {
		if !weekday(l.Weekday()) {
			return time.Time{}, time.Time{}, false
		}
		open, close = g.at(l, g.open), g.at(l, g.close)
		return open, close, !l.Before(open) && l.Before(close)
	}

	back := (int(l.Weekday()) - int(g.openDay) + 7) % 7
	open = g.at(l.AddDate(0, 0, -back), g.open)
	if open.After(l) {
		open = g.at(open.AddDate(0, 0, -7), g.open)
	}
	fwd := (int(g.closeDay) - int(open.Weekday()) + 7) % 7
	close = g.at(open.AddDate(0, 0, fwd), g.close)
	if !close.After(open) {
		close = g.at(close.AddDate(0, 0, 7), g.close)
	}
	return open, close, l.Before(close)
}

func (g *Gate) IsOpen(t time.Time) bool {
	_, _, ok := g.bounds(t)
	return ok
}

// ShouldFlatten is true from close minus the auto-flatten offset until the
// next session opens.
func (g *Gate) ShouldFlatten(t time.Time) bool {
	_, close, ok := g.bounds(t)
	if !ok {
		return true
	}
	return !t.Before(close.Add(-g.flatten))
}

// CanEnter reports whether a new position may be opened at t.
func (g *Gate) CanEnter(t time.Time) bool {
	return g.IsOpen(t) && !g.ShouldFlatten(t)
}

// NextFlatten returns the first instant at or after t where ShouldFlatten
// holds.
func (g *Gate) NextFlatten(t time.Time) time.Time {
	_, close, ok := g.bounds(t)
	if !ok {
		return t
	}
	f := close.Add(-g.flatten)
	if f.Before(t) {
		return t
	}
	return f
}

// NextOpen returns the first session open strictly after t.
func (g *Gate) NextOpen(t time.Time) time.Time {
	l := t.In(g.loc)
	if g.kind == RTH {
		for d := 0; d <= 7; d++ {
			day := l.AddDate(0, 0, d)
			open := g.at(day, g.open)
			if weekday(open.Weekday()) && open.After(l) {
				return open
			}
		}
	}
	fwd := (int(g.openDay) - int(l.Weekday()) + 7) % 7
	open := g.at(l.AddDate(0, 0, fwd), g.open)
	if !open.After(l) {
		open = g.at(open.AddDate(0, 0, 7), g.open)
	}
	return open
}

// TradingDay keys daily risk counters. A continuous session that opens in
// the evening books the evening to the following calendar day.
func (g *Gate) TradingDay(t time.Time) string {
	l := t.In(g.loc)
	if g.kind == Continuous && g.open > g.close && l.Hour()*60+l.Minute() >= g.open {
		l = l.AddDate(0, 0, 1)
	}
	return l.Format("2006-01-02")
}
