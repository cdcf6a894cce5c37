package realtime

import (
	"time"

	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/errs"
)

// Transport is the minimal surface the registries need from a live connection.
// *Client implements it; tests plug in fakes.
type Transport interface {
	// Send queues a serialized frame for delivery. It must not block: a full
	// outbound queue is an error, not a stall.
	Send(payload []byte) error
	// Close tears the connection down. Safe to call more than once.
	Close()
}

// Connection is one live transport session. UserID stays zero until the
// session is identified and is immutable after that.
type Connection struct {
	ID            string
	UserID        int64
	Username      string
	EstablishedAt time.Time
	Transport     Transport
}

// RemovedConnection is the final state handed back by Remove, used by the
// presence tracker and subscription index to clean up after the session.
type RemovedConnection struct {
	ID       string
	UserID   int64
	Username string
}

// Registry maps connection ids to live sessions and keeps a per-user reverse
// index for fan-out. It has no locks: the hub goroutine is the only writer
// and reader, the same ownership discipline the rest of the package follows.
type Registry struct {
	log    *zap.Logger
	byConn map[string]*Connection
	byUser map[int64]map[string]*Connection
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:    log,
		byConn: make(map[string]*Connection),
		byUser: make(map[int64]map[string]*Connection),
	}
}

// Admit registers a connection in the unauthenticated state. A duplicate id
// is an invariant violation on the caller's side; it is logged and ignored.
func (r *Registry) Admit(id string, username string, t Transport) {
	if _, ok := r.byConn[id]; ok {
		r.log.Warn("duplicate connection admit", zap.String("conn", id))
		return
	}
	r.byConn[id] = &Connection{
		ID:            id,
		Username:      username,
		EstablishedAt: time.Now(),
		Transport:     t,
	}
}

// Identify attaches a resolved user identity to an admitted connection.
// Re-identifying with the same user id is a no-op; a different id is
// ErrAlreadyIdentified.
func (r *Registry) Identify(id string, userID int64) error {
	c, ok := r.byConn[id]
	if !ok {
		return errs.ErrNotFound
	}
	if c.UserID == userID {
		return nil
	}
	if c.UserID != 0 {
		return errs.ErrAlreadyIdentified
	}
	c.UserID = userID
	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[string]*Connection)
		r.byUser[userID] = conns
	}
	conns[id] = c
	return nil
}

// Remove detaches a connection and returns its final state, or nil if the
// connection is unknown (double removal is a tolerated no-op).
func (r *Registry) Remove(id string) *RemovedConnection {
	c, ok := r.byConn[id]
	if !ok {
		return nil
	}
	delete(r.byConn, id)
	if c.UserID != 0 {
		if conns := r.byUser[c.UserID]; conns != nil {
			delete(conns, id)
			if len(conns) == 0 {
				delete(r.byUser, c.UserID)
			}
		}
	}
	return &RemovedConnection{ID: c.ID, UserID: c.UserID, Username: c.Username}
}

// Get looks up a live connection by id.
func (r *Registry) Get(id string) (*Connection, bool) {
	c, ok := r.byConn[id]
	return c, ok
}

// LivingConnectionsOf returns a snapshot of the user's live transports.
// Callers must tolerate connections closing between snapshot and send.
func (r *Registry) LivingConnectionsOf(userID int64) []Transport {
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Transport, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Transport)
	}
	return out
}

// ConnectionCountOf reports how many identified connections the user has.
func (r *Registry) ConnectionCountOf(userID int64) int {
	return len(r.byUser[userID])
}

// All returns a snapshot of every live transport.
func (r *Registry) All() []Transport {
	out := make([]Transport, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c.Transport)
	}
	return out
}

// Len reports the number of live connections.
func (r *Registry) Len() int { return len(r.byConn) }

// UserIDs returns the ids of all users with at least one identified connection.
func (r *Registry) UserIDs() []int64 {
	out := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}
