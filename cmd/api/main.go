package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradedesk/internal/accounts"
	"tradedesk/internal/auth"
	"tradedesk/internal/config"
	"tradedesk/internal/db"
	"tradedesk/internal/events"
	"tradedesk/internal/httpserver"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/orders"
	"tradedesk/internal/positions"
)

// symbolLimit bounds how many ticker subscriptions the feed opens at boot.
const symbolLimit = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	demoBalance, err := decimal.NewFromString(cfg.DemoBalance)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	bus := events.NewBus()

	accountStore := accounts.NewStore(pool)
	orderStore := orders.NewStore(pool)
	positionStore := positions.NewStore(pool)

	client := marketdata.NewClient(cfg.ExchangeRESTURL)
	feed := marketdata.NewFeed(cfg.ExchangeWSURL, bus, logger, cfg.FeedMaxReconnect, cfg.FeedBaseDelay)
	market := marketdata.NewService(client, feed, logger)

	authSvc := auth.NewService(accountStore, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL, demoBalance)
	orderSvc := orders.NewService(accountStore, orderStore, positionStore, bus, logger)
	positionSvc := positions.NewService(positionStore, accountStore, orderStore, market, bus, logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:      auth.NewHandler(authSvc),
		AccountsHandler:  accounts.NewHandler(accountStore),
		OrderHandler:     orders.NewHandler(orderSvc),
		PositionsHandler: positions.NewHandler(positionSvc),
		MarketHandler:    marketdata.NewHandler(market),
		DepthWS:          marketdata.NewDepthWS(market, feed, cfg.WebSocketOrigin),
		CandleWS:         marketdata.NewCandleWS(market, feed, cfg.WebSocketOrigin),
		AuthService:      authSvc,
		WSHandler:        httpserver.NewWSHandler(bus, authSvc, market, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	if err := market.Start(ctx, symbolLimit); err != nil {
		logger.Warn("market data feed unavailable at boot", zap.Error(err))
	}
	defer market.Stop()

	// keep open positions marked even when the browser is not connected
	go positionSvc.RunPoller(ctx, cfg.PositionPollFreq)

	// mark positions on every live tick as well
	go func() {
		sub := bus.Subscribe()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-sub:
				if evt.Type != events.TypePrice {
					continue
				}
				tick, ok := evt.Data.(marketdata.PriceUpdate)
				if !ok {
					continue
				}
				if err := positionSvc.SyncMarket(ctx, tick.Symbol); err != nil && ctx.Err() == nil {
					logger.Warn("tick sync failed", zap.String("market", tick.Symbol), zap.Error(err))
				}
			}
		}
	}()

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
