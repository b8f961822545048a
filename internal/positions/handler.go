package positions

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tradedesk/internal/httputil"
	"tradedesk/internal/ledger"
	"tradedesk/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	market := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("market")))
	list, err := h.svc.List(r.Context(), userID, status, market)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if list == nil {
		list = []model.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request, userID string) {
	summary, err := h.svc.Summary(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

type closeRequest struct {
	CloseAmount *decimal.Decimal `json:"close_amount"`
	Price       *decimal.Decimal `json:"price"`
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID string) {
	positionID := chi.URLParam(r, "id")
	var req closeRequest
	if r.ContentLength > 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}
	p, err := h.svc.Close(r.Context(), userID, positionID, req.CloseAmount, req.Price)
	if err != nil {
		httputil.WriteJSON(w, closeStatus(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func closeStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPositionClosed), errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrFeedUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
