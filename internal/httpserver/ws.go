package httpserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"tradedesk/internal/auth"
	"tradedesk/internal/events"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/model"
)

// WSHandler fans bus events out to one authenticated browser connection.
// Price and feed events go to everyone; order and position events only to
// the account that owns them. On connect the client first receives a
// price_update burst with the last known price of every tracked symbol.
type WSHandler struct {
	bus      *events.Bus
	authSvc  *auth.Service
	market   *marketdata.Service
	origin   string
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *events.Bus, authSvc *auth.Service, market *marketdata.Service, origin string) *WSHandler {
	return &WSHandler{
		bus:     bus,
		authSvc: authSvc,
		market:  market,
		origin:  origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

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

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// browsers cannot set headers on WS, the token travels as a query param
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	if h.market != nil {
		for _, u := range h.market.Snapshot() {
			if err := conn.WriteJSON(events.Event{Type: events.TypePrice, Data: u}); err != nil {
				return
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt := <-sub:
			if !visibleTo(evt, userID) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func visibleTo(evt events.Event, userID string) bool {
	switch data := evt.Data.(type) {
	case model.Order:
		return data.AccountID == userID
	case model.Position:
		return data.AccountID == userID
	default:
		return true
	}
}
