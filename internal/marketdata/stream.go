package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/events"
)

// maxStreamsPerConn bounds how many symbols share one combined-stream
// connection. The exchange rejects subscriptions past this point.
const maxStreamsPerConn = 20

const maxReconnectDelay = 30 * time.Second

// Conn is the read side of a websocket connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Dialer opens a websocket connection to url. Tests swap this out.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PriceUpdate is one live ticker tick.
type PriceUpdate struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	PriceChange decimal.Decimal `json:"price_change_percent"`
	High        decimal.Decimal `json:"high_24h"`
	Low         decimal.Decimal `json:"low_24h"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
}

// Feed maintains websocket subscriptions against the exchange and republishes
// updates. Each subscription reconnects with exponential backoff; after
// maxAttempts consecutive failures it gives up and publishes a single
// feed_error event.
type Feed struct {
	wsURL       string
	bus         *events.Bus
	log         *zap.Logger
	dial        Dialer
	maxAttempts int
	baseDelay   time.Duration
}

func NewFeed(wsURL string, bus *events.Bus, log *zap.Logger, maxAttempts int, baseDelay time.Duration) *Feed {
	return &Feed{
		wsURL:       strings.TrimRight(wsURL, "/"),
		bus:         bus,
		log:         log,
		dial:        defaultDialer,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// SetDialer replaces the connection factory. Call before subscribing.
func (f *Feed) SetDialer(d Dialer) { f.dial = d }

// Stream is a handle to an active subscription. Close is idempotent.
type Stream struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *Stream) Close() {
	s.once.Do(s.cancel)
}

// Done is closed once every connection of the subscription has stopped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// SubscribeTickers streams live ticker updates for symbols, splitting them
// across combined-stream connections of at most maxStreamsPerConn each.
// Every update is passed to handle and published on the bus.
func (f *Feed) SubscribeTickers(ctx context.Context, symbols []string, handle func(PriceUpdate)) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{cancel: cancel, done: make(chan struct{})}

	var wg sync.WaitGroup
	for start := 0; start < len(symbols); start += maxStreamsPerConn {
		end := start + maxStreamsPerConn
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]
		names := make([]string, 0, len(chunk))
		for _, s := range chunk {
			names = append(names, strings.ToLower(s)+"@ticker")
		}
		url := f.wsURL + "/stream?streams=" + strings.Join(names, "/")

		wg.Add(1)
		go func() {
			defer wg.Done()
			f.run(ctx, url, func(msg []byte) {
				var env struct {
					Data struct {
						Symbol      string `json:"s"`
						Close       string `json:"c"`
						Change      string `json:"P"`
						High        string `json:"h"`
						Low         string `json:"l"`
						QuoteVolume string `json:"q"`
					} `json:"data"`
				}
				if err := json.Unmarshal(msg, &env); err != nil || env.Data.Symbol == "" {
					return
				}
				u := PriceUpdate{
					Symbol:      env.Data.Symbol,
					Price:       parseDecimal(env.Data.Close),
					PriceChange: parseDecimal(env.Data.Change),
					High:        parseDecimal(env.Data.High),
					Low:         parseDecimal(env.Data.Low),
					QuoteVolume: parseDecimal(env.Data.QuoteVolume),
				}
				if handle != nil {
					handle(u)
				}
				f.bus.Publish(events.Event{Type: events.TypePrice, Data: u})
			})
		}()
	}
	go func() {
		wg.Wait()
		close(st.done)
	}()
	return st
}

// SubscribeDepth streams incremental order book deltas for one symbol. The
// caller seeds a snapshot via Client.Depth and applies each delta to it.
func (f *Feed) SubscribeDepth(ctx context.Context, symbol string, handle func(BookDelta)) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{cancel: cancel, done: make(chan struct{})}
	url := f.wsURL + "/ws/" + strings.ToLower(symbol) + "@depth@100ms"

	go func() {
		defer close(st.done)
		f.run(ctx, url, func(msg []byte) {
			var body struct {
				Bids [][2]string `json:"b"`
				Asks [][2]string `json:"a"`
			}
			if err := json.Unmarshal(msg, &body); err != nil {
				return
			}
			var delta BookDelta
			for _, lvl := range body.Bids {
				delta.Bids = append(delta.Bids, BookLevel{Price: parseDecimal(lvl[0]), Quantity: parseDecimal(lvl[1])})
			}
			for _, lvl := range body.Asks {
				delta.Asks = append(delta.Asks, BookLevel{Price: parseDecimal(lvl[0]), Quantity: parseDecimal(lvl[1])})
			}
			if handle != nil {
				handle(delta)
			}
		})
	}()
	return st
}

// SubscribeKlines streams candles for one symbol and interval. Unfinished
// candles arrive with Final set to false and are replaced in place.
func (f *Feed) SubscribeKlines(ctx context.Context, symbol, interval string, handle func(Candle)) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{cancel: cancel, done: make(chan struct{})}
	url := f.wsURL + "/ws/" + strings.ToLower(symbol) + "@kline_" + interval

	go func() {
		defer close(st.done)
		f.run(ctx, url, func(msg []byte) {
			var body struct {
				Kline struct {
					OpenTime  int64  `json:"t"`
					CloseTime int64  `json:"T"`
					Open      string `json:"o"`
					High      string `json:"h"`
					Low       string `json:"l"`
					Close     string `json:"c"`
					Volume    string `json:"v"`
					Final     bool   `json:"x"`
				} `json:"k"`
			}
			if err := json.Unmarshal(msg, &body); err != nil || body.Kline.OpenTime == 0 {
				return
			}
			if handle != nil {
				handle(Candle{
					OpenTime:  body.Kline.OpenTime,
					Open:      parseDecimal(body.Kline.Open),
					High:      parseDecimal(body.Kline.High),
					Low:       parseDecimal(body.Kline.Low),
					Close:     parseDecimal(body.Kline.Close),
					Volume:    parseDecimal(body.Kline.Volume),
					CloseTime: body.Kline.CloseTime,
					Final:     body.Kline.Final,
				})
			}
		})
	}()
	return st
}

// run keeps one connection alive until ctx is cancelled or the reconnect
// budget is exhausted. Every failed round trip counts against the budget and
// waits out the backoff, whether the dial failed or the connection dropped
// after being accepted; only a connection that actually delivered a message
// resets the counter.
func (f *Feed) run(ctx context.Context, url string, handle func([]byte)) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := f.dial(ctx, url)
		if err != nil {
			f.log.Warn("feed connection failed", zap.String("url", url), zap.Error(err))
		} else {
			connDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-connDone:
				}
			}()
			delivered := false
			for {
				_, msg, rerr := conn.ReadMessage()
				if rerr != nil {
					conn.Close()
					close(connDone)
					if ctx.Err() != nil {
						return
					}
					f.log.Warn("feed read failed", zap.String("url", url), zap.Error(rerr))
					break
				}
				if !delivered {
					delivered = true
					attempt = 0
				}
				handle(msg)
			}
		}

		attempt++
		if attempt >= f.maxAttempts {
			f.log.Error("feed unavailable, giving up",
				zap.String("url", url), zap.Int("attempts", attempt))
			f.bus.Publish(events.Event{
				Type: events.TypeFeedError,
				Data: map[string]string{"error": fmt.Sprintf("feed unavailable after %d attempts", attempt)},
			})
			return
		}
		delay := f.reconnectDelay(attempt)
		f.log.Warn("feed reconnecting",
			zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (f *Feed) reconnectDelay(attempt int) time.Duration {
	d := f.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}
