package collab

import (
	"hash/fnv"
	"log"
	"net/http"

	"builder-collab/internal/middleware"
	"builder-collab/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: validate origin against the configured builder hosts
		return true
	},
}

// userPalette tints cursors, lock borders and avatar badges. A user without
// an explicit color gets a stable pick based on their id.
var userPalette = []string{
	"#e06c75", "#61afef", "#98c379", "#c678dd", "#e5c07b", "#56b6c2", "#d19a66",
}

// WebSocketHandler upgrades builder connections into page sessions.
type WebSocketHandler struct {
	hub *Hub
}

// NewWebSocketHandler creates a handler bound to the hub.
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandlePageConnection handles the websocket connection for one page.
func (h *WebSocketHandler) HandlePageConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	pageID := vars["id"]

	user := userFromRequest(r)

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("page.id", pageID),
		attribute.String("user.id", user.ID),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := NewSession(h.hub, conn, pageID, user)
	h.hub.register <- session

	// Separate goroutines for reading and writing prevent a slow peer
	// from deadlocking the connection.
	go session.WritePump(ctx)
	go session.ReadPump(ctx)

	log.Printf("✓ WebSocket connection established for page %s (user: %s, session: %s)",
		pageID, user.Name, session.ID)
}

// userFromRequest builds the user identity from query parameters.
// TODO: replace with token auth once the builder gateway issues sessions.
func userFromRequest(r *http.Request) *models.CollaborationUser {
	q := r.URL.Query()

	id := q.Get("user_id")
	if id == "" {
		id = uuid.New().String()
	}
	name := q.Get("user_name")
	if name == "" {
		name = "Anonymous"
	}
	color := q.Get("color")
	if color == "" {
		color = colorFor(id)
	}
	perms := models.Permissions(q.Get("permissions"))
	if perms != models.PermissionView {
		perms = models.PermissionEdit
	}

	return &models.CollaborationUser{
		ID:          id,
		Name:        name,
		Avatar:      q.Get("avatar"),
		Color:       color,
		Status:      models.StatusActive,
		Permissions: perms,
	}
}

func colorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return userPalette[h.Sum32()%uint32(len(userPalette))]
}
