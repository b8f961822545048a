package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service combines the REST client and the websocket feed behind one API and
// keeps an in-memory cache of the latest price per symbol. Everything else in
// the process asks the cache, never the exchange.
type Service struct {
	client *Client
	feed   *Feed
	log    *zap.Logger

	mu     sync.RWMutex
	prices map[string]PriceUpdate

	stream *Stream
}

func NewService(client *Client, feed *Feed, log *zap.Logger) *Service {
	return &Service{
		client: client,
		feed:   feed,
		log:    log,
		prices: make(map[string]PriceUpdate),
	}
}

// Start seeds the token list from REST and opens ticker subscriptions for the
// top symbols. It returns once the subscriptions are launched.
func (s *Service) Start(ctx context.Context, symbolLimit int) error {
	tokens, err := s.client.Tokens(ctx, symbolLimit)
	if err != nil {
		return fmt.Errorf("load token list: %w", err)
	}
	symbols := make([]string, 0, len(tokens))
	s.mu.Lock()
	for _, t := range tokens {
		symbols = append(symbols, t.Symbol)
		s.prices[t.Symbol] = PriceUpdate{
			Symbol:      t.Symbol,
			Price:       t.LastPrice,
			PriceChange: t.PriceChange,
			QuoteVolume: t.QuoteVolume,
		}
	}
	s.mu.Unlock()

	s.stream = s.feed.SubscribeTickers(ctx, symbols, s.record)
	s.log.Info("market data feed started", zap.Int("symbols", len(symbols)))
	return nil
}

// Stop closes the ticker subscriptions.
func (s *Service) Stop() {
	if s.stream != nil {
		s.stream.Close()
	}
}

func (s *Service) record(u PriceUpdate) {
	s.mu.Lock()
	s.prices[u.Symbol] = u
	s.mu.Unlock()
}

// LastPrice returns the most recent cached price for symbol.
func (s *Service) LastPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	u, ok := s.prices[strings.ToUpper(symbol)]
	s.mu.RUnlock()
	if !ok || u.Price.IsZero() {
		return decimal.Decimal{}, false
	}
	return u.Price, true
}

// Snapshot returns a copy of every cached price update.
func (s *Service) Snapshot() []PriceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PriceUpdate, 0, len(s.prices))
	for _, u := range s.prices {
		out = append(out, u)
	}
	return out
}

// Price returns the live price for symbol, falling back to a REST lookup
// when the cache has nothing.
func (s *Service) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := s.LastPrice(symbol); ok {
		return p, nil
	}
	return s.client.Price(ctx, symbol)
}

// Tokens proxies the REST token list.
func (s *Service) Tokens(ctx context.Context, limit int) ([]Token, error) {
	return s.client.Tokens(ctx, limit)
}

// Ticker proxies the REST 24h ticker.
func (s *Service) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	return s.client.Ticker(ctx, symbol)
}

// Depth proxies the REST order book snapshot.
func (s *Service) Depth(ctx context.Context, symbol string) (OrderBook, error) {
	return s.client.Depth(ctx, symbol)
}

// Klines proxies the REST candle history.
func (s *Service) Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return s.client.Klines(ctx, symbol, interval, limit)
}
