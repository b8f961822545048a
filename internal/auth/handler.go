package auth

import (
	"net/http"

	"tradedesk/internal/httputil"
	"tradedesk/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type walletRequest struct {
	WalletAddress string `json:"wallet_address"`
	Email         string `json:"email"`
}

type walletResponse struct {
	AccessToken string        `json:"access_token"`
	Account     model.Account `json:"account"`
}

func (h *Handler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if r.ContentLength > 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}
	token, acc, err := h.svc.ConnectWallet(r.Context(), req.WalletAddress, req.Email)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, walletResponse{AccessToken: token, Account: acc})
}
