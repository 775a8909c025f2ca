package handlers

import (
	"net/http"

	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/dispatch"
)

// OrderHandler serves customer order endpoints.
type OrderHandler struct {
	logger   logx.Logger
	dispatch dispatchUsecase
}

// NewOrderHandler wires the dispatch usecase into HTTP handlers.
func NewOrderHandler(logger logx.Logger, d dispatchUsecase) *OrderHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &OrderHandler{logger: logger, dispatch: d}
}

// Cancel handles POST /orders/{orderId}/cancel. Ownership is checked by
// the coordinator against the caller.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := idFromURL(r, "orderId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, ok := principal(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req cancelRequest
	if ok := decodeOptionalJSON(h.logger, w, r, &req); !ok {
		return
	}
	o, err := h.dispatch.CancelOrder(r.Context(), dispatch.Actor{ID: p.ID, Role: p.Role}, orderID, req.Reason)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(*o))
}
