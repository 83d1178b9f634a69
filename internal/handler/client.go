package handler

import (
	"net/http"

	"obstaclecam/internal/logger"
	"obstaclecam/internal/service/websocket"

	gws "github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = gws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers viewers in the hub so they receive frames,
// annotations and alerts.
func ViewWebsocketHandler(hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warning("WebSocket upgrade error", "error", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
					logger.Debug("Viewer disconnected with error", "error", err)
				}
				return
			}
		}
	}
}
