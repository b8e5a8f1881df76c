package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/backend/internal/domain"
)

type shippingRequest struct {
	Zip int `json:"zip"`
}

type bankTransferRequest struct {
	BankTransfer bool `json:"bank_transfer"`
}

type checkoutResponse struct {
	Redirect string `json:"redirect"`
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.Cart(r.Context(), sessionID(r))
	a.writeCart(w, r, view, err)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.AddToCart(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	a.writeCart(w, r, view, err)
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveFromCart(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	a.writeCart(w, r, view, err)
}

func (a *API) handleSetShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Zip < 0 {
		writeError(w, http.StatusBadRequest, errors.New("zip must not be negative"))
		return
	}
	view, err := a.service.SetShipping(r.Context(), sessionID(r), req.Zip)
	a.writeCart(w, r, view, err)
}

func (a *API) handleSetBankTransfer(w http.ResponseWriter, r *http.Request) {
	var req bankTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SetBankTransfer(r.Context(), sessionID(r), req.BankTransfer)
	a.writeCart(w, r, view, err)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var buyer domain.BuyerInfo
	if err := decodeJSON(r, &buyer); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	redirect, err := a.service.StartCheckout(r.Context(), sessionID(r), buyer)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{Redirect: redirect})
}

func (a *API) writeCart(w http.ResponseWriter, r *http.Request, view domain.CartView, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
