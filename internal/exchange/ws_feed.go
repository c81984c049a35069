package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/coreengine/internal/candle"
	"github.com/lumenquant/coreengine/internal/logger"
)

// tick is a single trade print received from a demo websocket feed.
type tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
	TS     int64           `json:"ts_ms"`
}

// WSFeed aggregates a stream of trade ticks from a websocket endpoint into
// one-minute candles and exposes them through the Exchange port, for use by
// cmd/livebot against a demo venue that only speaks trade prints rather
// than kline history.
type WSFeed struct {
	name string
	url  string
	mock *Mock

	mu         sync.Mutex
	inProgress map[string]*candle.Candle // per-symbol candle being built
	log        *logger.Logger
}

// NewWSFeed creates a feed that will dial url on Run and aggregate ticks
// for every symbol it receives into the embedded Mock exchange.
func NewWSFeed(name, url string) *WSFeed {
	return &WSFeed{
		name:       name,
		url:        url,
		mock:       NewMock(name, false),
		inProgress: make(map[string]*candle.Candle),
		log:        logger.Component("exchange-ws").WithField("exchange", name),
	}
}

// Exchange returns the Exchange port view of this feed's aggregated candles.
func (f *WSFeed) Exchange() Exchange { return f.mock }

// Run dials the websocket endpoint and aggregates ticks until ctx is
// canceled or the connection drops. Callers typically run this in a
// goroutine alongside the live driver.
func (f *WSFeed) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var t tick
		if err := conn.ReadJSON(&t); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		f.ingest(t)
	}
}

func (f *WSFeed) ingest(t tick) {
	ts := time.UnixMilli(t.TS).UTC().Truncate(time.Minute)

	f.mu.Lock()
	defer f.mu.Unlock()

	cur, ok := f.inProgress[t.Symbol]
	if !ok || cur.Timestamp.Before(ts) {
		if cur != nil {
			f.flush(t.Symbol, *cur)
		}
		cur = &candle.Candle{
			Timestamp: ts,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
		}
		f.inProgress[t.Symbol] = cur
		return
	}

	if t.Price.GreaterThan(cur.High) {
		cur.High = t.Price
	}
	if t.Price.LessThan(cur.Low) {
		cur.Low = t.Price
	}
	cur.Close = t.Price
	cur.Volume = cur.Volume.Add(t.Volume)
}

func (f *WSFeed) flush(symbol string, c candle.Candle) {
	f.mock.Append(symbol, c)
	f.log.Debug().Str("symbol", symbol).Str("close", c.Close.String()).Msg("flushed aggregated candle")
}
