package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sentryview/sentryview/internal/realtime"
	"github.com/sentryview/sentryview/internal/tokens"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

type WSHandler struct {
	Tokens *tokens.Manager
	Hub    *realtime.Hub
}

// GET /api/v1/ws?token=...
// Browsers cannot set headers on websocket upgrades, so auth rides the
// query string.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.Tokens.Validate(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Realtime] upgrade failed: %v", err)
		return
	}

	log.Printf("[Realtime] client connected: user=%s", claims.UserID)
	h.Hub.Register(conn, claims.UserID)
}
