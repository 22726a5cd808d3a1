package ws

import (
	"context"
	"net"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	Hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{Hub: hub}
}

// NewWsUpgrader accepts browsers from allowedOrigins and any client that
// sends no Origin at all (CLI, SDK). An empty list allows every origin.
func (h *Handler) NewWsUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade ws connection")
		return
	}

	client := NewClient(h.Hub, conn, remoteIP(r))
	select {
	case h.Hub.OpenCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}

	// Start pumps
	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
