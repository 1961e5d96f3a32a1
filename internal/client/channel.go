package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"builder-collab/internal/models"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

/*
LEARNING: COLLABORATION CHANNEL CLIENT

The channel is the builder's single doorway to the collaboration server.
It owns the websocket, reconnects with exponential backoff, and keeps a
reactive snapshot of the shared state: the roster, the lock table, the
cursors and the chat log. Everything above it (edit controller, overlay
projection, coordinator) reads those snapshots and funnels writes through
the named action methods — nobody else touches the socket.
*/

// ConnectionStatus is the channel's connection state machine.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ChannelError is a channel-level failure. Recoverable errors clear on the
// next successful reconnect; non-recoverable ones require user action.
type ChannelError struct {
	Code        string
	Message     string
	Recoverable bool
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Options configures a channel.
type Options struct {
	// ServerURL is the base websocket URL, e.g. ws://localhost:8080.
	ServerURL string
	PageID    string
	User      models.CollaborationUser

	// LockTTL mirrors the server's lease duration and is only used for
	// the optimistic local entry between a lock request and the
	// authoritative grant frame.
	LockTTL time.Duration
}

// Channel maintains the live connection to one page room.
type Channel struct {
	opts Options

	mu      sync.RWMutex
	conn    *websocket.Conn
	status  ConnectionStatus
	lastErr *ChannelError

	users   map[string]models.CollaborationUser
	locks   map[string]models.ComponentLock
	cursors map[string]models.CursorPosition
	chat    []models.ChatMessage
	prefs   models.SyncPreferences

	send chan []byte
	done chan struct{}

	clock func() time.Time
}

// maxChatBuffer caps the in-memory chat log; history beyond it lives
// server-side.
const maxChatBuffer = 200

// NewChannel creates a disconnected channel.
func NewChannel(opts Options) *Channel {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &Channel{
		opts:    opts,
		status:  StatusDisconnected,
		users:   make(map[string]models.CollaborationUser),
		locks:   make(map[string]models.ComponentLock),
		cursors: make(map[string]models.CursorPosition),
		prefs:   models.DefaultSyncPreferences(),
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		clock:   time.Now,
	}
}

// Connect dials the server (retrying with exponential backoff) and starts
// the read/write loops. It returns once the first connection is up or the
// backoff gives up.
func (c *Channel) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	if err := c.dial(ctx); err != nil {
		c.setError(&ChannelError{Code: "connect_failed", Message: err.Error(), Recoverable: true})
		return fmt.Errorf("failed to connect collaboration channel: %w", err)
	}

	c.setStatus(StatusConnected)
	go c.run(ctx)
	return nil
}

func (c *Channel) dial(ctx context.Context) error {
	target := fmt.Sprintf("%s/ws/page/%s?user_id=%s&user_name=%s&color=%s&permissions=%s",
		c.opts.ServerURL,
		url.PathEscape(c.opts.PageID),
		url.QueryEscape(c.opts.User.ID),
		url.QueryEscape(c.opts.User.Name),
		url.QueryEscape(c.opts.User.Color),
		url.QueryEscape(string(c.opts.User.Permissions)),
	)

	operation := func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

// run owns the connection lifecycle: read until failure, then reconnect
// until the context or Close ends the channel.
func (c *Channel) run(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		done := c.done
		c.mu.RUnlock()

		stop := make(chan struct{})
		go c.writeLoop(conn, stop)
		c.readLoop(conn)
		close(stop)
		conn.Close()

		select {
		case <-done:
			c.setStatus(StatusDisconnected)
			return
		case <-ctx.Done():
			c.setStatus(StatusDisconnected)
			return
		default:
		}

		if c.Status() == StatusError {
			// Non-recoverable: stay down until the user asks to retry.
			return
		}

		c.setStatus(StatusReconnecting)
		if err := c.dial(ctx); err != nil {
			c.setError(&ChannelError{Code: "reconnect_failed", Message: err.Error(), Recoverable: true})
			return
		}
		c.resetSharedState()
		c.setStatus(StatusConnected)
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Dropping undecodable frame: %v", err)
			continue
		}
		c.handleFrame(&env)
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case frame := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// Reconnect retries a channel that gave up (disconnected or error state).
func (c *Channel) Reconnect(ctx context.Context) error {
	switch c.Status() {
	case StatusDisconnected, StatusError:
	default:
		return nil // already live or already retrying
	}

	c.mu.Lock()
	c.lastErr = nil
	c.done = make(chan struct{})
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Close shuts the channel down for good.
func (c *Channel) Close() {
	c.mu.Lock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// resetSharedState drops state that a fresh initial sync will replace, so
// a reconnect never shows leases or cursors from the previous connection.
func (c *Channel) resetSharedState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[string]models.CollaborationUser)
	c.locks = make(map[string]models.ComponentLock)
	c.cursors = make(map[string]models.CursorPosition)
}

// handleFrame folds one server frame into the snapshot state.
func (c *Channel) handleFrame(env *models.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case models.MessageTypeRoster:
		var p models.RosterPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.users = make(map[string]models.CollaborationUser, len(p.Users))
			for _, u := range p.Users {
				c.users[u.ID] = u
			}
		}

	case models.MessageTypeJoin:
		var p models.JoinPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.users[p.User.ID] = p.User
		}

	case models.MessageTypeLeave:
		var p models.JoinPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			delete(c.users, p.User.ID)
			delete(c.cursors, p.User.ID)
		}

	case models.MessageTypeHeartbeat:
		var p struct {
			UserID string            `json:"user_id"`
			Status models.UserStatus `json:"status"`
		}
		if json.Unmarshal(env.Payload, &p) == nil {
			if u, ok := c.users[p.UserID]; ok {
				u.LastSeen = c.clock()
				if p.Status != "" {
					u.Status = p.Status
				} else {
					u.Status = models.StatusActive
				}
				c.users[p.UserID] = u
			}
		}

	case models.MessageTypeLockState:
		var p models.LockStatePayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.locks = make(map[string]models.ComponentLock, len(p.Locks))
			for _, l := range p.Locks {
				c.locks[l.ComponentID] = l
			}
		}

	case models.MessageTypeLock:
		var p models.LockPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.locks[p.Lock.ComponentID] = p.Lock
		}

	case models.MessageTypeUnlock:
		var p models.UnlockPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			delete(c.locks, p.ComponentID)
		}

	case models.MessageTypeLockDenied:
		var p models.LockDeniedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			// Roll back the optimistic entry; the holder's lease arrives
			// (or already arrived) through normal lock frames.
			if l, ok := c.locks[p.ComponentID]; ok && l.UserID == c.opts.User.ID {
				delete(c.locks, p.ComponentID)
			}
		}

	case models.MessageTypeCursor:
		var p models.CursorPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.UserID != c.opts.User.ID {
			c.cursors[p.UserID] = p.Cursor
		}

	case models.MessageTypeChat:
		var p models.ChatPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.chat = append(c.chat, p.Message)
			if len(c.chat) > maxChatBuffer {
				c.chat = c.chat[len(c.chat)-maxChatBuffer:]
			}
		}

	case models.MessageTypeChatHistory:
		var p models.ChatHistoryPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.chat = p.Messages
		}

	case models.MessageTypeError:
		var p models.ErrorPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.lastErr = &ChannelError{Code: p.Code, Message: p.Message, Recoverable: p.Recoverable}
			if !p.Recoverable {
				c.status = StatusError
			}
		}
	}
}

func (c *Channel) enqueue(t models.MessageType, payload interface{}) {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", t, err)
		return
	}
	frame, err := env.Encode()
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("Outbound buffer full, dropping %s frame", t)
	}
}

// Actions

// LockComponent requests a lease on a component. The entry is inserted
// optimistically with the configured TTL; the authoritative grant (or a
// denial) replaces it.
func (c *Channel) LockComponent(componentID string, lockType models.LockType) {
	c.mu.Lock()
	now := c.clock()
	c.locks[componentID] = models.ComponentLock{
		ComponentID: componentID,
		UserID:      c.opts.User.ID,
		LockType:    lockType,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(c.opts.LockTTL),
	}
	c.mu.Unlock()

	c.enqueue(models.MessageTypeLock, models.LockPayload{Lock: models.ComponentLock{
		ComponentID: componentID,
		LockType:    lockType,
	}})
}

// UnlockComponent releases a lease. Safe to call when none is held.
func (c *Channel) UnlockComponent(componentID string) {
	c.mu.Lock()
	if l, ok := c.locks[componentID]; ok && l.UserID == c.opts.User.ID {
		delete(c.locks, componentID)
	}
	c.mu.Unlock()

	c.enqueue(models.MessageTypeUnlock, models.UnlockPayload{ComponentID: componentID})
}

// IsComponentLocked reports whether someone else holds a live lease on the
// component. The local user's own lease never counts.
func (c *Channel) IsComponentLocked(componentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.locks[componentID]
	return ok && l.UserID != c.opts.User.ID && !l.Expired(c.clock())
}

// UpdateCursor broadcasts the local pointer position. Gated by the cursor
// sharing preference.
func (c *Channel) UpdateCursor(pos models.CursorPosition) {
	c.mu.RLock()
	enabled := c.prefs.EnableCursorSharing
	c.mu.RUnlock()
	if !enabled {
		return
	}
	c.enqueue(models.MessageTypeCursor, models.CursorPayload{Cursor: pos})
}

// SendChatMessage sends a chat line, optionally anchored to a component.
func (c *Channel) SendChatMessage(text, componentID string) {
	if text == "" {
		return
	}
	c.enqueue(models.MessageTypeChat, models.ChatPayload{Message: models.ChatMessage{
		Text:        text,
		ComponentID: componentID,
	}})
}

// SendHeartbeat refreshes the server-side last-seen for the local user.
func (c *Channel) SendHeartbeat() {
	c.enqueue(models.MessageTypeHeartbeat, models.HeartbeatPayload{})
}

// UpdateSyncPreferences applies a partial preferences update locally and
// forwards it to the server.
func (c *Channel) UpdateSyncPreferences(patch models.PreferencesPatch) {
	c.mu.Lock()
	c.prefs = c.prefs.Apply(patch)
	c.mu.Unlock()

	c.enqueue(models.MessageTypePreferences, models.PreferencesPayload{Patch: patch})
}

// Snapshot accessors

// Status returns the connection state.
func (c *Channel) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the last channel error, or nil.
func (c *Channel) Err() *ChannelError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Blocked reports whether the channel is in a transitional state during
// which the builder should gate canvas input.
func (c *Channel) Blocked() bool {
	switch c.Status() {
	case StatusConnected, StatusDisconnected:
		return false
	}
	return true
}

// CurrentUser returns the local user identity.
func (c *Channel) CurrentUser() models.CollaborationUser {
	return c.opts.User
}

// ActiveUsers returns the roster sorted by name.
func (c *Channel) ActiveUsers() []models.CollaborationUser {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CollaborationUser, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ComponentLocks returns a copy of the lock table.
func (c *Channel) ComponentLocks() map[string]models.ComponentLock {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.ComponentLock, len(c.locks))
	for k, v := range c.locks {
		out[k] = v
	}
	return out
}

// UserCursors returns a copy of the foreign cursor positions.
func (c *Channel) UserCursors() map[string]models.CursorPosition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.CursorPosition, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out
}

// ChatMessages returns the buffered chat log, oldest first.
func (c *Channel) ChatMessages() []models.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ChatMessage, len(c.chat))
	copy(out, c.chat)
	return out
}

// Preferences returns the local sync preferences.
func (c *Channel) Preferences() models.SyncPreferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs
}

func (c *Channel) setStatus(s ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	if s == StatusConnected {
		c.lastErr = nil
	}
	c.mu.Unlock()
}

func (c *Channel) setError(err *ChannelError) {
	c.mu.Lock()
	c.lastErr = err
	c.status = StatusError
	c.mu.Unlock()
}
