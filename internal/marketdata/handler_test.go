package marketdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradedesk/internal/events"
)

// newMockExchange serves just enough of the Binance REST API for the tests.
func newMockExchange(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING"},
			{"symbol":"ETHUSDT","baseAsset":"ETH","quoteAsset":"USDT","status":"TRADING"}
		]}`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		ticker := `{"symbol":"BTCUSDT","lastPrice":"65000.50","highPrice":"66000","lowPrice":"64000",
			"priceChangePercent":"2.5","volume":"1000","quoteVolume":"2500000000"}`
		if r.URL.Query().Get("symbol") != "" {
			_, _ = w.Write([]byte(ticker))
			return
		}
		_, _ = w.Write([]byte(`[` + ticker + `,
			{"symbol":"ETHUSDT","lastPrice":"3200.25","highPrice":"3300","lowPrice":"3100",
			"priceChangePercent":"-1.2","volume":"5000","quoteVolume":"16000000"}]`))
	})
	mux.HandleFunc("/api/v3/depth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids":[["100","1"]],"asks":[["101","2"]]}`))
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"100","110","95","105","42",1700000059999]]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T) (*Service, *Feed) {
	t.Helper()
	exchange := newMockExchange(t)
	feed := NewFeed("wss://example.test", events.NewBus(), zap.NewNop(), 1, 0)
	return NewService(NewClient(exchange.URL), feed, zap.NewNop()), feed
}

func TestTickerHandlerIncludesDisplayFields(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.Ticker(rec, httptest.NewRequest(http.MethodGet, "/v1/market/ticker?symbol=btcusdt", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Symbol        string `json:"symbol"`
		PriceDisplay  string `json:"price_display"`
		ChangeDisplay string `json:"change_display"`
		VolumeDisplay string `json:"volume_display"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "BTCUSDT", view.Symbol)
	assert.Equal(t, "65000.50", view.PriceDisplay)
	assert.Equal(t, "+2.50%", view.ChangeDisplay)
	assert.Equal(t, "$2.50B", view.VolumeDisplay)
}

func TestTokensHandlerIncludesDisplayFields(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.Tokens(rec, httptest.NewRequest(http.MethodGet, "/v1/market/tokens", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		Symbol        string `json:"symbol"`
		ChangeDisplay string `json:"change_display"`
		VolumeDisplay string `json:"volume_display"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "BTCUSDT", views[0].Symbol)
	assert.Equal(t, "$2.50B", views[0].VolumeDisplay)
	assert.Equal(t, "ETHUSDT", views[1].Symbol)
	assert.Equal(t, "-1.20%", views[1].ChangeDisplay)
	assert.Equal(t, "$16.00M", views[1].VolumeDisplay)
}

func TestCandlesHandlerRejectsUnknownInterval(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.Candles(rec, httptest.NewRequest(http.MethodGet, "/v1/market/candles?symbol=BTCUSDT&interval=7m", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
