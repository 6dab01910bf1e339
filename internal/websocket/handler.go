package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections and
// attaches them to the transparency feed.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // The feed is public; any origin may subscribe.
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}

		NewSubscriber(hub, conn).Run(r.Context())
	}
}
