package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func TestWSFeed_AggregatesTicksIntoCandles(t *testing.T) {
	upgrader := websocket.Upgrader{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ticks := []tick{
			{Symbol: "BTC-USD", Price: decimal.RequireFromString("100"), Volume: decimal.RequireFromString("1"), TS: base.UnixMilli()},
			{Symbol: "BTC-USD", Price: decimal.RequireFromString("105"), Volume: decimal.RequireFromString("1"), TS: base.Add(10 * time.Second).UnixMilli()},
			{Symbol: "BTC-USD", Price: decimal.RequireFromString("95"), Volume: decimal.RequireFromString("1"), TS: base.Add(20 * time.Second).UnixMilli()},
			// next minute rolls the candle over; this one stays in-progress
			{Symbol: "BTC-USD", Price: decimal.RequireFromString("110"), Volume: decimal.RequireFromString("1"), TS: base.Add(time.Minute).UnixMilli()},
		}
		for _, tk := range ticks {
			if err := conn.WriteJSON(tk); err != nil {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	feed := NewWSFeed("demo", wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()
	<-done

	candles, err := feed.Exchange().GetCandles(context.Background(), "BTC-USD", OneMinute, 10, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 flushed candle (the second is still in progress), got %d", len(candles))
	}
	c := candles[0]
	if c.Open.String() != "100" || c.High.String() != "105" || c.Low.String() != "95" || c.Close.String() != "95" {
		t.Errorf("unexpected aggregated candle: %+v", c)
	}
}
