package collab

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"builder-collab/internal/locks"
	"builder-collab/internal/middleware"
	"builder-collab/internal/models"
	"builder-collab/internal/presence"

	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: COLLABORATION HUB

One hub serves every page room on this instance. A room bundles the
sessions editing one page with that page's presence roster and lock
registry.

Key Concepts:
1. **sync.RWMutex**: Concurrent-safe access to the room table
2. **Event loop**: register/unregister/broadcast are serialized through
   channels into one goroutine, so room membership changes never race
3. **Sweep loop**: a ticker evicts expired leases and silent users, and
   broadcasts the implied unlock/leave frames
4. **Authoritative leases**: lock claims are arbitrated here, acquire-if-
   absent; clients only ever request
*/

// Options configures hub timing and collaborators.
type Options struct {
	LockTTL       time.Duration
	IdleAfter     time.Duration
	OfflineAfter  time.Duration
	SweepInterval time.Duration
	ChatHistory   int

	ChatRepo    ChatRepository  // optional
	SessionRepo SessionRecorder // optional
}

// Room bundles the live state for one page.
type Room struct {
	ID       string
	sessions map[*Session]bool
	Roster   *presence.Roster
	Locks    *locks.Registry
}

// Hub coordinates all page rooms on this server instance.
type Hub struct {
	opts Options

	rooms map[string]*Room
	mu    sync.RWMutex

	register   chan *Session
	unregister chan *Session
	broadcast  chan *BroadcastMessage

	// bridge is the optional cross-instance fanout; set before Start.
	bridge Publisher

	done chan struct{}
}

// BroadcastMessage is one frame destined for every session in a room.
type BroadcastMessage struct {
	PageID  string
	Message []byte
	Sender  *Session // skip this session when broadcasting
	remote  bool     // arrived via the bridge; do not re-publish
}

// NewHub creates a hub with the given timing options.
func NewHub(opts Options) *Hub {
	return &Hub{
		opts:       opts,
		rooms:      make(map[string]*Room),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// SetBridge wires the cross-instance publisher. Call before Start.
func (h *Hub) SetBridge(b Publisher) {
	h.bridge = b
}

// Start begins the hub event loop and the lease/presence sweep.
func (h *Hub) Start() {
	log.Println("🔄 Starting collaboration hub...")

	go func() {
		for {
			select {
			case <-h.done:
				log.Println("Collaboration hub shutting down...")
				return

			case session := <-h.register:
				h.handleRegister(session)

			case session := <-h.unregister:
				h.handleUnregister(session)

			case msg := <-h.broadcast:
				h.handleBroadcast(msg)
			}
		}
	}()

	go h.sweepLoop()

	log.Println("✓ Collaboration hub started")
}

// room returns the room for a page, creating it on first use.
func (h *Hub) room(pageID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomLocked(pageID)
}

func (h *Hub) roomLocked(pageID string) *Room {
	room, ok := h.rooms[pageID]
	if !ok {
		room = &Room{
			ID:       pageID,
			sessions: make(map[*Session]bool),
			Roster:   presence.NewRoster(h.opts.IdleAfter, h.opts.OfflineAfter),
			Locks:    locks.NewRegistry(h.opts.LockTTL),
		}
		h.rooms[pageID] = room
	}
	return room
}

// RoomPresence returns the roster snapshot for a page. Empty when the page
// has no room on this instance.
func (h *Hub) RoomPresence(pageID string) []models.CollaborationUser {
	h.mu.RLock()
	room, ok := h.rooms[pageID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Roster.Snapshot()
}

// RoomLocks returns the live leases for a page.
func (h *Hub) RoomLocks(pageID string) []models.ComponentLock {
	h.mu.RLock()
	room, ok := h.rooms[pageID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Locks.Snapshot()
}

func (h *Hub) handleRegister(session *Session) {
	h.mu.Lock()
	room := h.roomLocked(session.PageID)
	room.sessions[session] = true
	h.mu.Unlock()

	room.Roster.Join(*session.User)

	log.Printf("  Session %s joined page %s (user: %s, total: %d users)",
		session.ID, session.PageID, session.User.Name, room.Roster.Len())

	if h.opts.SessionRepo != nil {
		rec := &models.SessionRecord{
			ID:          session.ID,
			PageID:      session.PageID,
			UserID:      session.User.ID,
			UserName:    session.User.Name,
			ConnectedAt: session.ConnectedAt,
		}
		if err := h.opts.SessionRepo.Create(context.Background(), rec); err != nil {
			log.Printf("⚠️  Failed to record session %s: %v", session.ID, err)
		}
	}

	h.sendInitialState(session, room)

	// Tell everyone else who arrived.
	if frame, err := encodeFrame(models.MessageTypeJoin, models.JoinPayload{User: *session.User}); err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame, Sender: session}
	}
}

// sendInitialState hands a fresh session the current roster, live leases
// and recent chat, so its view converges before any broadcast arrives.
func (h *Hub) sendInitialState(session *Session, room *Room) {
	send := func(t models.MessageType, payload interface{}) {
		frame, err := encodeFrame(t, payload)
		if err != nil {
			log.Printf("⚠️  Failed to encode %s frame: %v", t, err)
			return
		}
		select {
		case session.Send <- frame:
		default:
			log.Printf("⚠️  Session %s buffer full during initial sync", session.ID)
		}
	}

	send(models.MessageTypeRoster, models.RosterPayload{Users: room.Roster.Snapshot()})
	send(models.MessageTypeLockState, models.LockStatePayload{Locks: room.Locks.Snapshot()})

	if h.opts.ChatRepo != nil {
		history, err := h.opts.ChatRepo.GetRecent(context.Background(), session.PageID, h.opts.ChatHistory)
		if err != nil {
			log.Printf("⚠️  Failed to load chat history for page %s: %v", session.PageID, err)
			return
		}
		send(models.MessageTypeChatHistory, models.ChatHistoryPayload{Messages: history})
	}
}

func (h *Hub) handleUnregister(session *Session) {
	h.mu.Lock()
	room, ok := h.rooms[session.PageID]
	if ok {
		if _, present := room.sessions[session]; present {
			delete(room.sessions, session)
			close(session.Send)
		} else {
			ok = false
		}
		if len(room.sessions) == 0 {
			delete(h.rooms, session.PageID)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	room.Roster.Leave(session.User.ID)

	log.Printf("  Session %s left page %s (remaining: %d users)",
		session.ID, session.PageID, room.Roster.Len())

	if h.opts.SessionRepo != nil {
		if err := h.opts.SessionRepo.MarkDisconnected(context.Background(), session.ID); err != nil {
			log.Printf("⚠️  Failed to close session record %s: %v", session.ID, err)
		}
	}

	// A disconnect releases every lease the user held.
	for _, componentID := range room.Locks.ReleaseAll(session.User.ID) {
		h.announceUnlock(session.PageID, componentID, session.User.ID)
	}

	if frame, err := encodeFrame(models.MessageTypeLeave, models.JoinPayload{User: *session.User}); err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame}
	}
}

func (h *Hub) handleBroadcast(msg *BroadcastMessage) {
	h.mu.RLock()
	room, ok := h.rooms[msg.PageID]
	var targets []*Session
	if ok {
		targets = make([]*Session, 0, len(room.sessions))
		for s := range room.sessions {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, session := range targets {
		if msg.Sender != nil && session == msg.Sender {
			continue
		}

		select {
		case session.Send <- msg.Message:
			// queued
		default:
			// Buffer full - connection is slow or dead. Drop it inline;
			// pushing to h.unregister from this goroutine would deadlock.
			log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
			h.dropSlowSession(session)
		}
	}

	if h.bridge != nil && !msg.remote {
		if err := h.bridge.Publish(msg.PageID, msg.Message); err != nil {
			log.Printf("⚠️  Bridge publish failed for page %s: %v", msg.PageID, err)
		}
	}
}

func (h *Hub) dropSlowSession(session *Session) {
	go func() {
		session.Conn.Close()
		h.unregister <- session
	}()
}

// Broadcast queues a frame for every session in a page room.
func (h *Hub) Broadcast(pageID string, message []byte, sender *Session) {
	h.broadcast <- &BroadcastMessage{PageID: pageID, Message: message, Sender: sender}
}

// InjectRemote feeds a frame received from a sibling instance into the
// local room, and mirrors lock frames into the local registry so late
// joiners on this instance see cross-instance leases.
func (h *Hub) InjectRemote(pageID string, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("⚠️  Dropping undecodable bridge frame for page %s: %v", pageID, err)
		return
	}

	room := h.room(pageID)
	switch env.Type {
	case models.MessageTypeLock:
		var p models.LockPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			room.Locks.ApplyRemote(p.Lock)
		}
	case models.MessageTypeUnlock:
		var p models.UnlockPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			room.Locks.RemoveRemote(p.ComponentID)
		}
	}

	h.broadcast <- &BroadcastMessage{PageID: pageID, Message: data, remote: true}
}

// handleMessage dispatches one inbound frame from a session. Runs on the
// session's read goroutine; all shared state it touches is mutex-guarded.
func (h *Hub) handleMessage(ctx context.Context, session *Session, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(session, "bad_frame", "undecodable message", true)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Hub.HandleMessage",
		attribute.String("session.id", session.ID),
		attribute.String("page.id", session.PageID),
		attribute.String("message.type", string(env.Type)),
	)
	defer span.End()

	room := h.room(session.PageID)

	switch env.Type {
	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(session, room, env.Payload)

	case models.MessageTypeLock:
		h.handleLock(session, room, env.Payload)

	case models.MessageTypeUnlock:
		h.handleUnlock(session, room, env.Payload)

	case models.MessageTypeCursor:
		h.handleCursor(session, env.Payload)

	case models.MessageTypeChat:
		h.handleChat(ctx, session, env.Payload)

	case models.MessageTypePreferences:
		h.handlePreferences(session, room, env.Payload)

	default:
		h.sendError(session, "unknown_type", "unknown message type: "+string(env.Type), true)
	}
}

func (h *Hub) handleHeartbeat(session *Session, room *Room, payload json.RawMessage) {
	room.Roster.Heartbeat(session.User.ID)

	// Forward so other clients can refresh this user's last-seen.
	var p models.HeartbeatPayload
	_ = json.Unmarshal(payload, &p)
	frame, err := encodeFrame(models.MessageTypeHeartbeat, struct {
		UserID string            `json:"user_id"`
		Status models.UserStatus `json:"status,omitempty"`
	}{UserID: session.User.ID, Status: p.Status})
	if err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame, Sender: session}
	}
}

func (h *Hub) handleLock(session *Session, room *Room, payload json.RawMessage) {
	var p models.LockPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(session, "bad_frame", "undecodable lock payload", true)
		return
	}

	if !session.User.CanEdit() {
		h.sendDenied(session, p.Lock.ComponentID, "", "")
		return
	}

	lock, ok := room.Locks.Acquire(p.Lock.ComponentID, session.User.ID, p.Lock.LockType)
	if !ok {
		holderName := ""
		if holder, found := room.Roster.Get(lock.UserID); found {
			holderName = holder.Name
		}
		h.sendDenied(session, p.Lock.ComponentID, lock.UserID, holderName)
		return
	}

	// Granted. Everyone, including the requester, gets the authoritative
	// lease so no client invents its own expiry.
	if frame, err := encodeFrame(models.MessageTypeLock, models.LockPayload{Lock: lock}); err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame}
	}
}

func (h *Hub) handleUnlock(session *Session, room *Room, payload json.RawMessage) {
	var p models.UnlockPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(session, "bad_frame", "undecodable unlock payload", true)
		return
	}

	if room.Locks.Release(p.ComponentID, session.User.ID) {
		h.announceUnlock(session.PageID, p.ComponentID, session.User.ID)
	}
}

func (h *Hub) handleCursor(session *Session, payload json.RawMessage) {
	var p models.CursorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return // cursor frames are best-effort
	}
	p.UserID = session.User.ID

	if frame, err := encodeFrame(models.MessageTypeCursor, p); err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame, Sender: session}
	}
}

func (h *Hub) handleChat(ctx context.Context, session *Session, payload json.RawMessage) {
	var p models.ChatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(session, "bad_frame", "undecodable chat payload", true)
		return
	}

	// The server owns identity and timestamps; the client only sends text.
	msg := models.NewChatMessage(session.PageID, session.User.ID, session.User.Name,
		p.Message.Text, p.Message.ComponentID)

	if h.opts.ChatRepo != nil {
		if err := h.opts.ChatRepo.Store(ctx, msg); err != nil {
			log.Printf("⚠️  Failed to persist chat message: %v", err)
			middleware.AddSpanError(ctx, err)
			// Still broadcast - live chat beats durable chat.
		}
	}

	if frame, err := encodeFrame(models.MessageTypeChat, models.ChatPayload{Message: *msg}); err == nil {
		h.broadcast <- &BroadcastMessage{PageID: session.PageID, Message: frame}
	}
}

func (h *Hub) handlePreferences(session *Session, room *Room, payload json.RawMessage) {
	var p models.PreferencesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(session, "bad_frame", "undecodable preferences payload", true)
		return
	}

	session.Prefs = session.Prefs.Apply(p.Patch)

	// Turning locking off is a transition, not just a flag flip: the
	// user's held leases are released immediately.
	if p.Patch.EnableComponentLocking != nil && !*p.Patch.EnableComponentLocking {
		for _, componentID := range room.Locks.ReleaseAll(session.User.ID) {
			h.announceUnlock(session.PageID, componentID, session.User.ID)
		}
	}
}

func (h *Hub) announceUnlock(pageID, componentID, userID string) {
	frame, err := encodeFrame(models.MessageTypeUnlock, models.UnlockPayload{
		ComponentID: componentID,
		UserID:      userID,
	})
	if err != nil {
		return
	}
	h.broadcast <- &BroadcastMessage{PageID: pageID, Message: frame}
}

func (h *Hub) sendDenied(session *Session, componentID, holderID, holderName string) {
	frame, err := encodeFrame(models.MessageTypeLockDenied, models.LockDeniedPayload{
		ComponentID: componentID,
		HolderID:    holderID,
		HolderName:  holderName,
	})
	if err != nil {
		return
	}
	select {
	case session.Send <- frame:
	default:
	}
}

func (h *Hub) sendError(session *Session, code, message string, recoverable bool) {
	frame, err := encodeFrame(models.MessageTypeError, models.ErrorPayload{
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	})
	if err != nil {
		return
	}
	select {
	case session.Send <- frame:
	default:
	}
}

// sweepLoop periodically evicts expired leases and silent users.
func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.RUnlock()

	for _, room := range rooms {
		for _, lock := range room.Locks.Sweep() {
			log.Printf("  Lease on %s (page %s) expired, held by %s", lock.ComponentID, room.ID, lock.UserID)
			h.announceUnlock(room.ID, lock.ComponentID, lock.UserID)
		}

		for _, userID := range room.Roster.Prune() {
			for _, componentID := range room.Locks.ReleaseAll(userID) {
				h.announceUnlock(room.ID, componentID, userID)
			}
			if frame, err := encodeFrame(models.MessageTypeLeave, models.JoinPayload{
				User: models.CollaborationUser{ID: userID, Status: models.StatusOffline},
			}); err == nil {
				h.broadcast <- &BroadcastMessage{PageID: room.ID, Message: frame}
			}
		}
	}
}

// Shutdown gracefully closes all connections.
func (h *Hub) Shutdown() {
	log.Println("🛑 Shutting down collaboration hub...")

	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range h.rooms {
		for session := range room.sessions {
			close(session.Send)
			session.Conn.Close()
		}
	}
	h.rooms = make(map[string]*Room)

	log.Println("✓ Collaboration hub shutdown complete")
}

func encodeFrame(t models.MessageType, payload interface{}) ([]byte, error) {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
