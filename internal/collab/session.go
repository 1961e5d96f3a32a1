package collab

import (
	"context"
	"log"
	"time"

	"builder-collab/internal/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Session is one live websocket connection to a page room.
type Session struct {
	ID     string
	PageID string
	User   *models.CollaborationUser
	Prefs  models.SyncPreferences

	Conn *websocket.Conn
	Send chan []byte // buffered channel for outbound frames
	Hub  *Hub

	ConnectedAt  time.Time
	LastActiveAt time.Time
}

// NewSession builds a session for an upgraded connection.
func NewSession(hub *Hub, conn *websocket.Conn, pageID string, user *models.CollaborationUser) *Session {
	now := time.Now()
	return &Session{
		ID:           ksuid.New().String(),
		PageID:       pageID,
		User:         user,
		Prefs:        models.DefaultSyncPreferences(),
		Conn:         conn,
		Send:         make(chan []byte, 256),
		Hub:          hub,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// ReadPump reads frames from the websocket and dispatches them to the hub.
// Learning: each session gets its own read goroutine; the pump owns all
// reads on the connection.
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.Hub.unregister <- s
		s.Conn.Close()
	}()

	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.LastActiveAt = time.Now()
		s.Hub.handleMessage(ctx, s, message)
	}
}

// WritePump writes frames to the websocket connection.
// Learning: a separate write goroutine prevents slow clients from blocking
// the hub, and is the only writer on the connection.
func (s *Session) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One websocket frame per envelope keeps client decoding
			// trivial; no batching of queued frames.
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
