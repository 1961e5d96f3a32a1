package models

// ConflictStrategy selects how concurrent edits to the same component are
// reconciled once both sides have synced.
type ConflictStrategy string

const (
	ConflictAuto    ConflictStrategy = "auto"
	ConflictManual  ConflictStrategy = "manual"
	ConflictAskUser ConflictStrategy = "ask_user"
)

// SyncPreferences gates the cross-cutting collaboration behaviors for one
// user. Each flag controls exactly one feature; the coordinator is
// responsible for any cleanup a transition implies (turning locking off
// releases the locks that user holds).
type SyncPreferences struct {
	EnableRealTimeSync      bool             `json:"enable_real_time_sync"`
	EnableCursorSharing     bool             `json:"enable_cursor_sharing"`
	EnableComponentLocking  bool             `json:"enable_component_locking"`
	EnableChatNotifications bool             `json:"enable_chat_notifications"`
	AutoSaveIntervalMs      int              `json:"auto_save_interval_ms"`
	ConflictResolution      ConflictStrategy `json:"conflict_resolution_strategy"`
}

// DefaultSyncPreferences returns the preferences a fresh session starts with.
func DefaultSyncPreferences() SyncPreferences {
	return SyncPreferences{
		EnableRealTimeSync:      true,
		EnableCursorSharing:     true,
		EnableComponentLocking:  true,
		EnableChatNotifications: true,
		AutoSaveIntervalMs:      30000,
		ConflictResolution:      ConflictAuto,
	}
}

// PreferencesPatch is a partial update; nil fields are left untouched.
// All preference mutations flow through a patch so there is a single
// source of truth upstream of the UI.
type PreferencesPatch struct {
	EnableRealTimeSync      *bool             `json:"enable_real_time_sync,omitempty"`
	EnableCursorSharing     *bool             `json:"enable_cursor_sharing,omitempty"`
	EnableComponentLocking  *bool             `json:"enable_component_locking,omitempty"`
	EnableChatNotifications *bool             `json:"enable_chat_notifications,omitempty"`
	AutoSaveIntervalMs      *int              `json:"auto_save_interval_ms,omitempty"`
	ConflictResolution      *ConflictStrategy `json:"conflict_resolution_strategy,omitempty"`
}

// Apply merges the patch into p and returns the result.
func (p SyncPreferences) Apply(patch PreferencesPatch) SyncPreferences {
	if patch.EnableRealTimeSync != nil {
		p.EnableRealTimeSync = *patch.EnableRealTimeSync
	}
	if patch.EnableCursorSharing != nil {
		p.EnableCursorSharing = *patch.EnableCursorSharing
	}
	if patch.EnableComponentLocking != nil {
		p.EnableComponentLocking = *patch.EnableComponentLocking
	}
	if patch.EnableChatNotifications != nil {
		p.EnableChatNotifications = *patch.EnableChatNotifications
	}
	if patch.AutoSaveIntervalMs != nil {
		p.AutoSaveIntervalMs = *patch.AutoSaveIntervalMs
	}
	if patch.ConflictResolution != nil {
		p.ConflictResolution = *patch.ConflictResolution
	}
	return p
}
