package marketdata

import (
	"net/http"
	"strconv"
	"strings"

	"tradedesk/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

var allowedIntervals = map[string]struct{}{
	"1m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "4h": {}, "1d": {}, "1w": {},
}

// tokenView and tickerView carry pre-formatted display strings alongside the
// raw values so the frontend never reimplements number formatting.
type tokenView struct {
	Token
	PriceDisplay  string `json:"price_display"`
	ChangeDisplay string `json:"change_display"`
	VolumeDisplay string `json:"volume_display"`
}

func newTokenView(t Token) tokenView {
	return tokenView{
		Token:         t,
		PriceDisplay:  FormatPrice(t.LastPrice),
		ChangeDisplay: FormatPercent(t.PriceChange),
		VolumeDisplay: FormatVolume(t.QuoteVolume),
	}
}

type tickerView struct {
	Ticker
	PriceDisplay  string `json:"price_display"`
	ChangeDisplay string `json:"change_display"`
	VolumeDisplay string `json:"volume_display"`
}

func newTickerView(t Ticker) tickerView {
	return tickerView{
		Ticker:        t,
		PriceDisplay:  FormatPrice(t.LastPrice),
		ChangeDisplay: FormatPercent(t.PriceChange),
		VolumeDisplay: FormatVolume(t.QuoteVolume),
	}
}

func (h *Handler) Tokens(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	tokens, err := h.svc.Tokens(r.Context(), limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, newTokenView(t))
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) Ticker(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	t, err := h.svc.Ticker(r.Context(), symbol)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newTickerView(t))
}

func (h *Handler) Depth(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	book, err := h.svc.Depth(r.Context(), symbol)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) Candles(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	interval := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("interval")))
	if interval == "" {
		interval = "1h"
	}
	if _, ok := allowedIntervals[interval]; !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid interval"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	candles, err := h.svc.Klines(r.Context(), symbol, interval, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, candles)
}

func querySymbol(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
}
