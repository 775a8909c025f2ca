package hub

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/logx"
)

const (
	writeTimeout           = 5 * time.Second
	maxDecodeErrorsPerConn = 5
)

// TokenVerifier resolves an access token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) WriteMessage(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return websocket.Message.Send(p.conn, string(payload))
}

func (p *wsPeer) Close() error { return p.conn.Close() }

type wsFrame struct {
	Type string `json:"type"`
}

// Handler upgrades authenticated requests to a websocket registered under
// the caller's user id. The token comes from the Authorization header or
// the "token" query parameter.
func (h *Hub) Handler(verifier TokenVerifier) http.Handler {
	server := websocket.Server{
		// Mobile clients send no Origin; authentication is the token.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			p, _ := auth.PrincipalFrom(conn.Request().Context())
			h.serveConn(conn, p)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeWSError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		token := auth.TokenFromRequest(r)
		if token == "" {
			writeWSError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		p, err := verifier.Verify(token)
		if err != nil || strings.TrimSpace(p.ID) == "" {
			h.logger.Info("websocket unauthorized", logx.String("remote", r.RemoteAddr), logx.Err(err))
			writeWSError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		server.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (h *Hub) serveConn(conn *websocket.Conn, p auth.Principal) {
	defer func() { _ = conn.Close() }()

	peer := &wsPeer{conn: conn}
	unregister := h.Register(p.ID, peer)
	defer unregister()

	h.logger.Debug("realtime connected", logx.String("user_id", p.ID), logx.String("role", string(p.Role)))
	hello, _ := json.Marshal(NewEnvelope(TypeConnected, map[string]string{
		"userId": p.ID,
		"role":   string(p.Role),
	}))
	if err := peer.WriteMessage(hello); err != nil {
		return
	}

	decodeErrors := 0
	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("realtime read ended", logx.String("user_id", p.ID), logx.Err(err))
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0
		if frame.Type == "ping" {
			pong, _ := json.Marshal(NewEnvelope(TypePong, nil))
			if err := peer.WriteMessage(pong); err != nil {
				return
			}
		}
	}
}

func writeWSError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
