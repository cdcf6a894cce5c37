package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PresenceStore is the durable mirror of online state. The chat repository
// implements it; presence stays best-effort with respect to this mirror.
type PresenceStore interface {
	SetUserOnlineStatus(ctx context.Context, userID int64, online bool, lastSeen time.Time) error
}

// presenceEntry exists only while the user has at least one identified
// connection; it is created on the first and deleted with the last.
type presenceEntry struct {
	userID           int64
	firstConnectedAt time.Time
}

// Tracker translates connection lifecycle edges into online/offline
// transitions. The in-memory registry is authoritative; the durable mirror is
// written on each edge and failures there are logged, never rolled back.
type Tracker struct {
	log      *zap.Logger
	registry *Registry
	store    PresenceStore
	entries  map[int64]*presenceEntry
}

func NewTracker(log *zap.Logger, registry *Registry, store PresenceStore) *Tracker {
	return &Tracker{
		log:      log,
		registry: registry,
		store:    store,
		entries:  make(map[int64]*presenceEntry),
	}
}

// Identify attaches the user identity to the connection and reports whether
// this was the user's offline→online edge. The registry and the presence
// entry are mutated together, before the durable write, so concurrent
// fan-out always observes a consistent in-memory view.
func (t *Tracker) Identify(ctx context.Context, connID string, userID int64) (first bool, err error) {
	if err := t.registry.Identify(connID, userID); err != nil {
		return false, err
	}
	if _, ok := t.entries[userID]; ok {
		return false, nil
	}
	t.entries[userID] = &presenceEntry{userID: userID, firstConnectedAt: time.Now()}

	if err := t.store.SetUserOnlineStatus(ctx, userID, true, time.Now()); err != nil {
		t.log.Error("presence write failed", zap.Int64("user", userID), zap.Error(err))
	}
	return true, nil
}

// ConnectionRemoved records a removed connection and reports whether it was
// the user's online→offline edge. Anonymous removals never transition.
func (t *Tracker) ConnectionRemoved(ctx context.Context, rc *RemovedConnection) (last bool) {
	if rc == nil || rc.UserID == 0 {
		return false
	}
	if t.registry.ConnectionCountOf(rc.UserID) > 0 {
		return false
	}
	if _, ok := t.entries[rc.UserID]; !ok {
		return false
	}
	delete(t.entries, rc.UserID)

	if err := t.store.SetUserOnlineStatus(ctx, rc.UserID, false, time.Now()); err != nil {
		t.log.Error("presence write failed", zap.Int64("user", rc.UserID), zap.Error(err))
	}
	return true
}

// IsOnline is derived from live registry state, never from the durable mirror.
func (t *Tracker) IsOnline(userID int64) bool {
	return t.registry.ConnectionCountOf(userID) > 0
}

// OnlineUserIDs snapshots the currently online users.
func (t *Tracker) OnlineUserIDs() []int64 {
	return t.registry.UserIDs()
}
