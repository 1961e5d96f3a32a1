package client

import (
	"fmt"
	"sort"
	"time"

	"builder-collab/internal/models"
)

// LockOverlay is everything the canvas needs to draw one foreign lock:
// a tinted fill over the component's bounding box plus a floating badge.
type LockOverlay struct {
	ComponentID string
	UserID      string
	UserName    string
	Color       string
	LockType    models.LockType

	// Label reads "{name} is {editing|moving|resizing}".
	Label string
	// RemainingSeconds is the whole seconds left on the lease, rounded up.
	RemainingSeconds int
	// Pulse marks active edits for the attention-drawing border animation;
	// moves and resizes render statically.
	Pulse bool

	// Screen-space geometry, already scaled by the canvas zoom factor.
	X, Y, Width, Height float64
}

// Overlays projects the lock table onto the canvas for one viewer.
//
// Admission rules, in order:
//  1. the viewer's own locks are never drawn — their editing state shows
//     through normal selection UI;
//  2. expired leases are invisible even if not yet swept;
//  3. a lock whose user or component no longer resolves is silently
//     dropped — after a delete, eventual consistency is expected, not an
//     error.
func Overlays(
	lockTable map[string]models.ComponentLock,
	users []models.CollaborationUser,
	components []models.Component,
	currentUserID string,
	zoom float64,
	now time.Time,
) []LockOverlay {
	if zoom <= 0 {
		zoom = 1
	}

	usersByID := make(map[string]models.CollaborationUser, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}
	componentsByID := make(map[string]models.Component, len(components))
	for _, comp := range components {
		componentsByID[comp.ID] = comp
	}

	overlays := make([]LockOverlay, 0, len(lockTable))
	for _, lock := range lockTable {
		if lock.UserID == currentUserID {
			continue
		}
		if lock.Expired(now) {
			continue
		}
		user, ok := usersByID[lock.UserID]
		if !ok {
			continue
		}
		comp, ok := componentsByID[lock.ComponentID]
		if !ok {
			continue
		}

		overlays = append(overlays, LockOverlay{
			ComponentID:      lock.ComponentID,
			UserID:           user.ID,
			UserName:         user.Name,
			Color:            user.Color,
			LockType:         lock.LockType,
			Label:            fmt.Sprintf("%s is %s", user.Name, lock.LockType.Verb()),
			RemainingSeconds: lock.RemainingSeconds(now),
			Pulse:            lock.LockType == models.LockTypeEditing,
			X:                comp.X * zoom,
			Y:                comp.Y * zoom,
			Width:            comp.Width * zoom,
			Height:           comp.Height * zoom,
		})
	}

	sort.Slice(overlays, func(i, j int) bool { return overlays[i].ComponentID < overlays[j].ComponentID })
	return overlays
}

// Overlays renders the channel's current lock table for the local user.
func (c *Channel) Overlays(components []models.Component, zoom float64) []LockOverlay {
	return Overlays(c.ComponentLocks(), c.ActiveUsers(), components, c.opts.User.ID, zoom, c.clock())
}
