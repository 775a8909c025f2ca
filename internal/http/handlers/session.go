package handlers

import (
	"net/http"
	"strings"

	"captain-dispatch/internal/logx"
)

// SessionHandler serves login, logout and profile endpoints.
type SessionHandler struct {
	logger logx.Logger
	uc     sessionUsecase
}

// NewSessionHandler wires a session usecase into HTTP handlers.
func NewSessionHandler(logger logx.Logger, uc sessionUsecase) *SessionHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &SessionHandler{logger: logger, uc: uc}
}

func (req loginRequest) valid() bool {
	return strings.TrimSpace(req.Username) != "" && req.Password != ""
}

// CaptainLogin handles POST /captain/login.
func (h *SessionHandler) CaptainLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if !req.valid() {
		writeError(h.logger, w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	s, err := h.uc.CaptainLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, captainLoginResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Captain:   captainToResponse(*s.Captain),
	})
}

// CaptainLogout handles POST /captain/{captainId}/logout.
func (h *SessionHandler) CaptainLogout(w http.ResponseWriter, r *http.Request) {
	captainID, err := idFromURL(r, "captainId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.uc.CaptainLogout(r.Context(), captainID); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CaptainProfile handles GET /captain/{captainId}.
func (h *SessionHandler) CaptainProfile(w http.ResponseWriter, r *http.Request) {
	captainID, err := idFromURL(r, "captainId")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.uc.GetCaptain(r.Context(), captainID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, captainToResponse(*c))
}

// UserLogin handles POST /auth/login for admins and customers.
func (h *SessionHandler) UserLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if !req.valid() {
		writeError(h.logger, w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	s, err := h.uc.UserLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, userLoginResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      userToResponse(*s.User),
	})
}
