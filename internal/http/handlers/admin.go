package handlers

import (
	"net/http"

	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/dispatch"
)

// AdminHandler serves the admin order-control and alert endpoints.
type AdminHandler struct {
	logger   logx.Logger
	dispatch dispatchUsecase
	notify   notificationUsecase
}

// NewAdminHandler wires the dispatch and notification usecases into HTTP handlers.
func NewAdminHandler(logger logx.Logger, d dispatchUsecase, n notificationUsecase) *AdminHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &AdminHandler{logger: logger, dispatch: d, notify: n}
}

// AssignToCaptains handles POST /admin/orders/{orderId}/assign-to-captains.
func (h *AdminHandler) AssignToCaptains(w http.ResponseWriter, r *http.Request) {
	orderID, err := idFromURL(r, "orderId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.dispatch.BroadcastReadyOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, broadcastResponse{
		OrderID:          res.OrderID,
		CaptainsNotified: res.CaptainsNotified,
		Delivered:        res.Delivered,
		ExpiresAt:        res.ExpiresAt,
	})
}

// MarkReady handles POST /admin/orders/{orderId}/ready.
func (h *AdminHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	orderID, err := idFromURL(r, "orderId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req readyRequest
	if ok := decodeOptionalJSON(h.logger, w, r, &req); !ok {
		return
	}
	o, err := h.dispatch.MarkReady(r.Context(), orderID, req.Notes)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(*o))
}

// Cancel handles POST /admin/orders/{orderId}/cancel.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

// SystemAlert handles POST /admin/notifications/system-alert.
func (h *AdminHandler) SystemAlert(w http.ResponseWriter, r *http.Request) {
	var req systemAlertRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	report, err := h.notify.SystemAlert(r.Context(), req.toModel())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, report)
}
