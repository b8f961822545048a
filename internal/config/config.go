package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	DBDSN            string
	JWTIssuer        string
	JWTSecret        string
	JWTTTL           time.Duration
	WebSocketOrigin  string
	ExchangeRESTURL  string
	ExchangeWSURL    string
	FeedMaxReconnect int
	FeedBaseDelay    time.Duration
	PositionPollFreq time.Duration
	DemoBalance      string
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 24 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.ExchangeRESTURL = strings.TrimRight(os.Getenv("EXCHANGE_REST_URL"), "/")
	if c.ExchangeRESTURL == "" {
		c.ExchangeRESTURL = "https://api.binance.com"
	}
	c.ExchangeWSURL = strings.TrimRight(os.Getenv("EXCHANGE_WS_URL"), "/")
	if c.ExchangeWSURL == "" {
		c.ExchangeWSURL = "wss://stream.binance.com:9443"
	}
	c.FeedMaxReconnect = 5
	if v := os.Getenv("FEED_MAX_RECONNECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, errors.New("invalid FEED_MAX_RECONNECTS")
		}
		c.FeedMaxReconnect = n
	}
	c.FeedBaseDelay = 5 * time.Second
	if v := os.Getenv("FEED_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, err
		}
		c.FeedBaseDelay = d
	}
	c.PositionPollFreq = 10 * time.Second
	if v := os.Getenv("POSITION_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, err
		}
		c.PositionPollFreq = d
	}
	c.DemoBalance = os.Getenv("DEMO_BALANCE")
	if c.DemoBalance == "" {
		c.DemoBalance = "10000"
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
