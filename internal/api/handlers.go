package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler handles the REST surface: read-only views of presence, locks,
// chat history and session audit. All live mutation happens over the
// websocket channel, never through these endpoints.
type Handler struct {
	hub         RoomStats      // interface defined in this package
	chatRepo    ChatHistory    // may be nil when persistence is disabled
	sessionRepo SessionHistory // may be nil when persistence is disabled
}

func NewHandler(hub RoomStats, chatRepo ChatHistory, sessionRepo SessionHistory) *Handler {
	return &Handler{
		hub:         hub,
		chatRepo:    chatRepo,
		sessionRepo: sessionRepo,
	}
}

// GetPresence returns the live roster for a page.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["id"]
	users := h.hub.RoomPresence(pageID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page_id": pageID,
		"users":   users,
		"count":   len(users),
	})
}

// GetLocks returns the live component leases for a page.
func (h *Handler) GetLocks(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["id"]
	locks := h.hub.RoomLocks(pageID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page_id": pageID,
		"locks":   locks,
		"count":   len(locks),
	})
}

// GetChatHistory returns recent chat for a page.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	if h.chatRepo == nil {
		http.Error(w, "chat persistence disabled", http.StatusNotFound)
		return
	}

	pageID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 50)

	messages, err := h.chatRepo.GetRecent(r.Context(), pageID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := h.chatRepo.CountForPage(r.Context(), pageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page_id":  pageID,
		"messages": messages,
		"total":    total,
	})
}

// GetSessions returns the recent session audit rows for a page.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo == nil {
		http.Error(w, "session persistence disabled", http.StatusNotFound)
		return
	}

	pageID := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 20)

	records, err := h.sessionRepo.RecentForPage(r.Context(), pageID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page_id":  pageID,
		"sessions": records,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
