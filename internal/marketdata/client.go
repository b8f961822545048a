package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to a Binance-compatible public REST API. All endpoints are
// read-only and unauthenticated.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// majorTokens are always sorted ahead of everything else in the token list,
// regardless of volume.
var majorTokens = map[string]struct{}{
	"BTC": {}, "ETH": {}, "BNB": {}, "XRP": {}, "ADA": {}, "DOGE": {},
	"MATIC": {}, "SOL": {}, "DOT": {}, "LTC": {}, "AVAX": {}, "LINK": {},
	"UNI": {}, "ATOM": {}, "ETC": {}, "XLM": {}, "BCH": {}, "FIL": {},
	"ALGO": {}, "ICP": {}, "VET": {}, "MANA": {}, "SAND": {}, "AXS": {},
	"THETA": {}, "XTZ": {}, "EOS": {}, "AAVE": {}, "CAKE": {}, "MKR": {},
}

type Token struct {
	Symbol      string          `json:"symbol"`
	Base        string          `json:"base"`
	Quote       string          `json:"quote"`
	LastPrice   decimal.Decimal `json:"last_price"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	Volume      decimal.Decimal `json:"volume"`
	PriceChange decimal.Decimal `json:"price_change_percent"`
}

type Ticker struct {
	Symbol      string          `json:"symbol"`
	LastPrice   decimal.Decimal `json:"last_price"`
	High        decimal.Decimal `json:"high_24h"`
	Low         decimal.Decimal `json:"low_24h"`
	PriceChange decimal.Decimal `json:"price_change_percent"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
}

type Candle struct {
	OpenTime  int64           `json:"open_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime int64           `json:"close_time"`
	Final     bool            `json:"final"`
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Status     string `json:"status"`
	} `json:"symbols"`
}

type tickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Tokens returns tradable USDT pairs, majors first, then by 24h quote volume
// descending, truncated to limit. Leveraged UP/DOWN products are skipped.
func (c *Client) Tokens(ctx context.Context, limit int) ([]Token, error) {
	if limit <= 0 {
		limit = 300
	}
	var info exchangeInfoResponse
	if err := c.getJSON(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	var tickers []tickerResponse
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}
	bySymbol := make(map[string]tickerResponse, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t
	}

	type ranked struct {
		tok      Token
		priority int
	}
	var rank []ranked
	for _, s := range info.Symbols {
		if s.QuoteAsset != "USDT" || s.Status != "TRADING" {
			continue
		}
		if strings.HasSuffix(s.BaseAsset, "UP") || strings.HasSuffix(s.BaseAsset, "DOWN") {
			continue
		}
		t := bySymbol[s.Symbol]
		tok := Token{
			Symbol:      s.Symbol,
			Base:        s.BaseAsset,
			Quote:       s.QuoteAsset,
			LastPrice:   parseDecimal(t.LastPrice),
			QuoteVolume: parseDecimal(t.QuoteVolume),
			Volume:      parseDecimal(t.Volume),
			PriceChange: parseDecimal(t.PriceChangePercent),
		}
		prio := 0
		if _, ok := majorTokens[s.BaseAsset]; ok {
			prio = 1
		}
		rank = append(rank, ranked{tok: tok, priority: prio})
	}
	sort.Slice(rank, func(i, j int) bool {
		if rank[i].priority != rank[j].priority {
			return rank[i].priority > rank[j].priority
		}
		return rank[i].tok.QuoteVolume.GreaterThan(rank[j].tok.QuoteVolume)
	})
	if len(rank) > limit {
		rank = rank[:limit]
	}
	out := make([]Token, 0, len(rank))
	for _, r := range rank {
		out = append(out, r.tok)
	}
	return out, nil
}

// Ticker returns the 24h stats for one symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	q := url.Values{"symbol": {strings.ToUpper(symbol)}}
	var t tickerResponse
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", q, &t); err != nil {
		return Ticker{}, err
	}
	return Ticker{
		Symbol:      t.Symbol,
		LastPrice:   parseDecimal(t.LastPrice),
		High:        parseDecimal(t.HighPrice),
		Low:         parseDecimal(t.LowPrice),
		PriceChange: parseDecimal(t.PriceChangePercent),
		Volume:      parseDecimal(t.Volume),
		QuoteVolume: parseDecimal(t.QuoteVolume),
	}, nil
}

// Price returns the latest trade price for one symbol.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{"symbol": {strings.ToUpper(symbol)}}
	var body struct {
		Price string `json:"price"`
	}
	if err := c.getJSON(ctx, "/api/v3/ticker/price", q, &body); err != nil {
		return decimal.Decimal{}, err
	}
	p, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price for %s: %w", symbol, err)
	}
	return p, nil
}

// Depth returns a top-of-book snapshot, capped at BookDepth levels per side.
func (c *Client) Depth(ctx context.Context, symbol string) (OrderBook, error) {
	q := url.Values{
		"symbol": {strings.ToUpper(symbol)},
		"limit":  {strconv.Itoa(BookDepth)},
	}
	var body struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := c.getJSON(ctx, "/api/v3/depth", q, &body); err != nil {
		return OrderBook{}, err
	}
	book := OrderBook{Symbol: strings.ToUpper(symbol)}
	for _, lvl := range body.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: parseDecimal(lvl[0]), Quantity: parseDecimal(lvl[1])})
	}
	for _, lvl := range body.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: parseDecimal(lvl[0]), Quantity: parseDecimal(lvl[1])})
	}
	return book, nil
}

// Klines returns up to limit candles for the given interval (1m, 15m, 1h, ...).
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	q := url.Values{
		"symbol":   {strings.ToUpper(symbol)},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		var openTime, closeTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		if err := json.Unmarshal(row[6], &closeTime); err != nil {
			continue
		}
		var o, h, l, cl, v string
		for i, dst := range []*string{&o, &h, &l, &cl, &v} {
			if err := json.Unmarshal(row[i+1], dst); err != nil {
				return nil, fmt.Errorf("parse kline for %s: %w", symbol, err)
			}
		}
		out = append(out, Candle{
			OpenTime:  openTime,
			Open:      parseDecimal(o),
			High:      parseDecimal(h),
			Low:       parseDecimal(l),
			Close:     parseDecimal(cl),
			Volume:    parseDecimal(v),
			CloseTime: closeTime,
			Final:     true,
		})
	}
	return out, nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}
