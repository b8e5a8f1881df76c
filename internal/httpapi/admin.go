package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/service"
)

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dates, err := domain.ParseDateRange(q.Get("dateFrom"), q.Get("dateTo"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := domain.OrderFilter{
		Page:     pageFrom(r),
		Dates:    dates,
		Customer: strings.TrimSpace(q.Get("customer")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := domain.ToOrderStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = status
	}

	orders, err := a.service.ListOrders(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.ManualOrder
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateManualOrder(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch domain.OrderPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if patch.Status != nil {
		status := domain.OrderStatus(strings.TrimSpace(string(*patch.Status)))
		patch.Status = &status
	}
	order, err := a.service.UpdateOrder(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dates, err := domain.ParseDateRange(q.Get("dateFrom"), q.Get("dateTo"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := domain.TransactionFilter{Page: pageFrom(r), Dates: dates}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := domain.ToTransactionStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = status
	}

	txs, err := a.service.ListTransactions(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Status))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.Sales(r.Context(), strings.TrimSpace(r.URL.Query().Get("type")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.Progress(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleProfit(w http.ResponseWriter, r *http.Request) {
	profit, err := a.service.Profit(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profit)
}

// pageFrom reads offset, size and sort. A missing size is left at zero so
// the service applies its configured default.
func pageFrom(r *http.Request) domain.Page {
	q := r.URL.Query()
	return domain.Page{
		Offset: parseOffset(q.Get("offset")),
		Size:   parsePositiveLimit(q.Get("size"), 0, maxPageSize),
		Sort:   strings.TrimSpace(q.Get("sort")),
	}
}
