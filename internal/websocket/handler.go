package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/larderapp/larder/internal/auth"
)

// Handler returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients scoped to the authenticated session.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // same-origin enforcement happens at the session cookie
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, ac.UserID, ac.HouseholdID)
		client.Run(r.Context())
	}
}
