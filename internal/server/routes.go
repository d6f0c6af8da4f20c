package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes wires the chat page, WebSocket endpoint, health check and
// metrics for hub.
func SetupRoutes(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", ChatPageHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))
	r.HandleFunc("/health", HealthHandler)
	r.Handle("/metrics", hub.Metrics().Handler()).Methods(http.MethodGet)
	return r
}
