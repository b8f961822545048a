package orders

import (
	"errors"
	"net/http"
	"strconv"

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

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req PlaceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	req.AccountID = userID
	order, err := h.svc.PlaceOrder(r.Context(), req)
	if err != nil {
		httputil.WriteJSON(w, placeStatus(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func placeStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrLeverageExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientMargin):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list, err := h.svc.List(r.Context(), userID, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
