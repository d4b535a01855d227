package events

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vidtube/accounts/internal/auth"
	apperrors "github.com/vidtube/accounts/internal/errors"
)

// Handler upgrades authenticated requests to session event streams.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler accepting same-origin requests plus the
// given origins ("*" allows any).
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAny || allowed[origin] {
					return true
				}
				return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
			},
		},
	}
}

// ServeWS must sit behind auth.Gate. Browsers send the accessToken cookie on
// the handshake, so no query parameter token is needed.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.Unauthorized("unauthorized request"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.hub.log.Warn(r.Context(), "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, user.ID)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
