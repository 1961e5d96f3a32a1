package api

import (
	"net/http"

	"builder-collab/internal/collab"
	"builder-collab/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, ws *collab.WebSocketHandler) *mux.Router {
	r := mux.NewRouter()

	// Middleware order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Read-only collaboration state
	api.HandleFunc("/pages/{id}/presence", h.GetPresence).Methods("GET")
	api.HandleFunc("/pages/{id}/locks", h.GetLocks).Methods("GET")
	api.HandleFunc("/pages/{id}/chat", h.GetChatHistory).Methods("GET")
	api.HandleFunc("/pages/{id}/sessions", h.GetSessions).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket route - the live collaboration channel
	r.HandleFunc("/ws/page/{id}", ws.HandlePageConnection)

	return r
}
