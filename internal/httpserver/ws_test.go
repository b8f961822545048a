package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradedesk/internal/auth"
	"tradedesk/internal/events"
	"tradedesk/internal/marketdata"
)

func mintToken(t *testing.T, issuer, secret, userID string) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestWSSendsPriceSnapshotOnConnect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING"}]}`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","lastPrice":"65000","priceChangePercent":"2.5","quoteVolume":"1000000"}]`))
	})
	exchange := httptest.NewServer(mux)
	defer exchange.Close()

	bus := events.NewBus()
	feed := marketdata.NewFeed("wss://example.test", bus, zap.NewNop(), 1, 0)
	feed.SetDialer(func(ctx context.Context, url string) (marketdata.Conn, error) {
		return nil, errors.New("offline")
	})
	market := marketdata.NewService(marketdata.NewClient(exchange.URL), feed, zap.NewNop())
	require.NoError(t, market.Start(context.Background(), 10))
	defer market.Stop()

	authSvc := auth.NewService(nil, "tradedesk", []byte("test-secret"), time.Hour, decimal.NewFromInt(10000))
	srv := httptest.NewServer(NewWSHandler(bus, authSvc, market, "*"))
	defer srv.Close()

	token := mintToken(t, "tradedesk", "test-secret", "acc-1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var evt struct {
		Type string `json:"type"`
		Data struct {
			Symbol string          `json:"symbol"`
			Price  decimal.Decimal `json:"price"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "price_update", evt.Type)
	assert.Equal(t, "BTCUSDT", evt.Data.Symbol)
	assert.Equal(t, "65000", evt.Data.Price.String())
}

func TestWSRejectsMissingToken(t *testing.T) {
	t.Parallel()

	authSvc := auth.NewService(nil, "tradedesk", []byte("test-secret"), time.Hour, decimal.NewFromInt(10000))
	srv := httptest.NewServer(NewWSHandler(events.NewBus(), authSvc, nil, "*"))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
