package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"
)

func TestReadCSVDatabento(t *testing.T) {
	in := `ts_event,rtype,publisher_id,instrument_id,open,high,low,close,volume,symbol
2025-03-04T14:31:00.000000000Z,33,1,42,100.25,101,100,100.75,50,MNQM5
2025-03-04T14:30:00.000000000Z,33,1,42,100,100.5,99.75,100.25,900,MNQH5
2025-03-04T14:30:00.000000000Z,33,1,43,101,101.5,100.75,101.25,20,MNQM5
2025-03-04T14:31:00.000000000Z,33,1,43,100.5,101.25,100.25,101,700,MNQH5
not-a-time,33,1,42,1,1,1,1,1,MNQH5
`
	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 after front-month filter", len(bars))
	}
	if !bars[0].Time.Equal(time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC)) || bars[0].Volume != 900 || bars[0].Open != 100 {
		t.Fatalf("first bar = %+v", bars[0])
	}
	if bars[1].Volume != 700 || bars[1].Close != 101 {
		t.Fatalf("second bar = %+v", bars[1])
	}
}

func TestReadCSVUnixTimestamps(t *testing.T) {
	tests := []struct {
		name string
		ts   string
	}{
		{"seconds", "1741098600"},
		{"millis", "1741098600000"},
		{"micros", "1741098600000000"},
		{"nanos", "1741098600000000000"},
	}
	want := time.Unix(1741098600, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := ReadCSV(strings.NewReader("Timestamp,Open,High,Low,Close\n" + tt.ts + ",1,2,0.5,1.5\n"))
			if err != nil {
				t.Fatalf("ReadCSV: %v", err)
			}
			if !bars[0].Time.Equal(want) || bars[0].Volume != 0 {
				t.Fatalf("bar = %+v", bars[0])
			}
		})
	}
}

func TestReadCSVNaiveTimesUseLocation(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	bars, err := ReadCSV(strings.NewReader("datetime,open,high,low,close,volume\n2025-03-04 09:30:00,1,2,0.5,1.5,10\n"), WithLocation(ny))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !bars[0].Time.Equal(time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("time = %v", bars[0].Time)
	}
}

func TestReadCSVUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	in, err := enc.String("timestamp,open,high,low,close\n1741098600,1,2,0.5,1.5\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].High != 2 {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("when,open,high,low,close\n1,1,1,1,1\n")); err == nil {
		t.Fatalf("expected missing time column error")
	}
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,close\n1,1,1,1\n")); err == nil {
		t.Fatalf("expected missing low column error")
	}
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,low,close\n")); err == nil {
		t.Fatalf("expected no bars error")
	}
}

func TestResample(t *testing.T) {
	var in strings.Builder
	in.WriteString("timestamp,open,high,low,close,volume\n")
	base := time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC)
	rows := [][5]float64{
		{100, 101, 99.5, 100.5, 1},
		{100.5, 102, 100, 101.5, 2},
		{101.5, 101.75, 98, 99, 3},
		{99, 99.5, 98.5, 99.25, 4},
		{99.25, 100, 99, 99.75, 5},
		{99.75, 100.25, 99.5, 100, 6},
	}
	for i, r := range rows {
		ts := base.Add(time.Duration(i) * time.Minute).Unix()
		in.WriteString(strings.Join([]string{
			formatInt(ts), formatFloat(r[0]), formatFloat(r[1]), formatFloat(r[2]), formatFloat(r[3]), formatFloat(r[4]),
		}, ",") + "\n")
	}
	bars, err := ReadCSV(strings.NewReader(in.String()), WithResample(5))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}
	b := bars[0]
	if !b.Time.Equal(base) || b.Open != 100 || b.High != 102 || b.Low != 98 || b.Close != 99.75 || b.Volume != 15 {
		t.Fatalf("first 5m bar = %+v", b)
	}
	if !bars[1].Time.Equal(base.Add(5*time.Minute)) || bars[1].Volume != 6 {
		t.Fatalf("second 5m bar = %+v", bars[1])
	}
}

func TestNewCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte("timestamp,open,high,low,close\n60,1,2,0.5,1.5\n0,1,2,0.5,1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := NewCSVSource(path)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	if src.Len() != 2 || src.Bars()[0].Time.Unix() != 0 {
		t.Fatalf("bars not sorted: %+v", src.Bars())
	}
	if _, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
