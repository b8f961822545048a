package marketdata

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

// DepthWS streams a live order book for one symbol to a browser. The book is
// seeded from the REST snapshot and maintained from the diff stream.
type DepthWS struct {
	svc      *Service
	feed     *Feed
	upgrader websocket.Upgrader
}

func NewDepthWS(svc *Service, feed *Feed, origin string) *DepthWS {
	return &DepthWS{
		svc:  svc,
		feed: feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

type depthMessage struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Bids   []BookLevel     `json:"bids"`
	Asks   []BookLevel     `json:"asks"`
	Spread decimal.Decimal `json:"spread_percent"`
}

func (h *DepthWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	book, err := h.svc.Depth(r.Context(), symbol)
	if err != nil {
		http.Error(w, "depth snapshot unavailable", http.StatusBadGateway)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan BookDelta, 100)
	st := h.feed.SubscribeDepth(ctx, symbol, func(d BookDelta) {
		select {
		case updates <- d:
		default:
		}
	})
	defer st.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		return conn.WriteJSON(depthMessage{
			Type:   "depth",
			Symbol: symbol,
			Bids:   book.Bids,
			Asks:   book.Asks,
			Spread: book.Spread(),
		})
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case delta := <-updates:
			book.Apply(delta)
			if err := send(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// CandleWS streams candles for one symbol and interval, history first, then
// live updates (the forming candle arrives with final=false).
type CandleWS struct {
	svc      *Service
	feed     *Feed
	upgrader websocket.Upgrader
}

func NewCandleWS(svc *Service, feed *Feed, origin string) *CandleWS {
	return &CandleWS{
		svc:  svc,
		feed: feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

type candleMessage struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol"`
	Candles []Candle `json:"candles,omitempty"`
	Candle  *Candle  `json:"candle,omitempty"`
}

func (h *CandleWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	interval := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("interval")))
	if interval == "" {
		interval = "1h"
	}
	if _, ok := allowedIntervals[interval]; !ok {
		http.Error(w, "invalid interval", http.StatusBadRequest)
		return
	}
	history, err := h.svc.Klines(r.Context(), symbol, interval, 200)
	if err != nil {
		http.Error(w, "candle history unavailable", http.StatusBadGateway)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Candle, 100)
	st := h.feed.SubscribeKlines(ctx, symbol, interval, func(c Candle) {
		select {
		case updates <- c:
		default:
		}
	})
	defer st.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(candleMessage{Type: "history", Symbol: symbol, Candles: history}); err != nil {
		return
	}
	for {
		select {
		case c := <-updates:
			if err := conn.WriteJSON(candleMessage{Type: "candle", Symbol: symbol, Candle: &c}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
