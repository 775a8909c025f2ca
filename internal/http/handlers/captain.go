package handlers

import (
	"net/http"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/statemachine"
)

// CaptainHandler serves the captain-facing order and location endpoints.
// Routes are mounted behind RequireSelf, so the path captain is the caller.
type CaptainHandler struct {
	logger   logx.Logger
	dispatch dispatchUsecase
	tracking trackingUsecase
}

// NewCaptainHandler wires the dispatch and tracking usecases into HTTP handlers.
func NewCaptainHandler(logger logx.Logger, d dispatchUsecase, t trackingUsecase) *CaptainHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &CaptainHandler{logger: logger, dispatch: d, tracking: t}
}

// AvailableOrders handles GET /captain/{captainId}/available-orders.
func (h *CaptainHandler) AvailableOrders(w http.ResponseWriter, r *http.Request) {
	captainID, err := idFromURL(r, "captainId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.dispatch.AvailableOrders(r.Context(), captainID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, ordersToResponse(list))
}

// AcceptOrder handles POST /captain/{captainId}/accept-order/{orderId}.
func (h *CaptainHandler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	captainID, orderID, ok := h.captainAndOrder(w, r)
	if !ok {
		return
	}
	o, err := h.dispatch.AcceptOrder(r.Context(), captainID, orderID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(*o))
}

// UpdateLocation handles POST /captain/{captainId}/location.
func (h *CaptainHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	captainID, err := idFromURL(r, "captainId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req locationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "lat and lng are required")
		return
	}

	res, err := h.tracking.UpdateLocation(r.Context(), captainID, req.toInput())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, locationResponse{
		Location:  toLocationDTO(res.Location),
		Forwarded: res.Forwarded,
	})
}

// UpdateOrderStatus handles POST /captain/{captainId}/order/{orderId}/status.
func (h *CaptainHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	captainID, orderID, ok := h.captainAndOrder(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	to, valid := domain.ParseOrderStatus(req.Status)
	if !valid {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid status")
		return
	}

	o, err := h.dispatch.UpdateOrderStatus(r.Context(), captainID, orderID, to, statemachine.Meta{
		Notes:    req.Notes,
		Location: req.Location.toModel(),
	})
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(*o))
}

func (h *CaptainHandler) captainAndOrder(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	captainID, err := idFromURL(r, "captainId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	orderID, err := idFromURL(r, "orderId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return captainID, orderID, true
}
