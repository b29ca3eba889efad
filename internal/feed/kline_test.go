package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func klineMsg(startMs int64, closed bool) string {
	return fmt.Sprintf(`{"stream":"mnq@kline_1m","data":{"e":"kline","k":{"t":%d,"o":"100.5","h":"101","l":"100","c":"100.75","v":"12","x":%t}}}`, startMs, closed)
}

func TestParseKline(t *testing.T) {
	bar, closed, err := ParseKline([]byte(`{"e":"kline","k":{"t":60000,"o":"1","h":"2","l":"0.5","c":"1.5","v":"3","x":true}}`))
	if err != nil || !closed {
		t.Fatalf("ParseKline raw = %v, %v", closed, err)
	}
	if !bar.Time.Equal(time.UnixMilli(60000)) || bar.Open != 1 || bar.High != 2 || bar.Low != 0.5 || bar.Close != 1.5 || bar.Volume != 3 {
		t.Fatalf("bar = %+v", bar)
	}

	if _, closed, err := ParseKline([]byte(klineMsg(0, false))); err != nil || closed {
		t.Fatalf("combined open kline = %v, %v", closed, err)
	}
	if _, _, err := ParseKline([]byte(`{"result":null,"id":1}`)); err == nil {
		t.Fatalf("expected error for subscription ack")
	}
	if _, _, err := ParseKline([]byte(`{"e":"kline","k":{"t":1,"o":"x","h":"2","l":"1","c":"1","v":"1","x":true}}`)); err == nil {
		t.Fatalf("expected error for bad price")
	}
}

func TestKlineStreamReconnectsAndResumes(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := conns.Add(1)
		var msgs []string
		switch n {
		case 1:
			msgs = []string{klineMsg(0, false), klineMsg(60000, true), klineMsg(120000, true)}
		default:
			msgs = []string{klineMsg(120000, true), klineMsg(180000, true)}
		}
		for _, m := range msgs {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if n == 1 {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream := NewKlineStream("ws"+strings.TrimPrefix(srv.URL, "http"), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	defer stream.Close()
	src := NewResume(stream)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, want := range []int64{60000, 120000, 180000} {
		b, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if b.Time.UnixMilli() != want {
			t.Fatalf("bar time = %d, want %d", b.Time.UnixMilli(), want)
		}
	}
	if src.Dropped() != 1 {
		t.Fatalf("dropped = %d, want the replayed kline", src.Dropped())
	}
	if conns.Load() < 2 {
		t.Fatalf("expected a reconnect, got %d connections", conns.Load())
	}
}
