package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/accounts"
	"tradedesk/internal/auth"
	"tradedesk/internal/httputil"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/orders"
	"tradedesk/internal/positions"
)

type RouterDeps struct {
	AuthHandler      *auth.Handler
	AccountsHandler  *accounts.Handler
	OrderHandler     *orders.Handler
	PositionsHandler *positions.Handler
	MarketHandler    *marketdata.Handler
	DepthWS          http.Handler
	CandleWS         http.Handler
	AuthService      *auth.Service
	WSHandler        http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// permissive CORS, the dashboard runs on its own origin in development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/wallet", d.AuthHandler.ConnectWallet)

		r.Get("/market/tokens", d.MarketHandler.Tokens)
		r.Get("/market/ticker", d.MarketHandler.Ticker)
		r.Get("/market/depth", d.MarketHandler.Depth)
		r.Get("/market/candles", d.MarketHandler.Candles)
		r.Get("/market/depth/ws", d.DepthWS.ServeHTTP)
		r.Get("/market/candles/ws", d.CandleWS.ServeHTTP)

		r.Get("/ws", d.WSHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", authed(d.AccountsHandler.Me))
			r.Get("/summary", authed(d.PositionsHandler.Summary))
			r.Post("/orders", authed(d.OrderHandler.Place))
			r.Get("/orders", authed(d.OrderHandler.List))
			r.Get("/positions", authed(d.PositionsHandler.List))
			r.Post("/positions/{id}/close", authed(d.PositionsHandler.Close))
		})
	})
	return r
}

// authed adapts a userID-style handler to chi, rejecting requests whose
// context carries no identity.
func authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, userID)
	}
}
