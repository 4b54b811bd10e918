package store

import (
	"context"
	"errors"
	"sync"

	"campus-nav-api/internal/domain"
)

// ErrNotFound indicates no presence record exists for the entity
var ErrNotFound = errors.New("presence record not found")

// EventType distinguishes record updates from removals on the watch stream
type EventType string

const (
	EventPut    EventType = "put"
	EventDelete EventType = "delete"
)

// Event is one change on the watch stream. Delete events carry a record
// holding only the entity id, so watchers can drop their cached state.
type Event struct {
	Type   EventType              `json:"type"`
	Record *domain.PresenceRecord `json:"record"`
}

// WatchFunc receives every store event, including deletes
type WatchFunc func(ev Event)

// PresenceStore is the path-addressable presence state shared by all
// publishers and trackers. Writes are full overwrites and the last write
// observed wins; Merge applies a partial update on top of the current
// record. No multi-key consistency is provided or required.
//
// RegisterOnDisconnect arranges a write that fires automatically when the
// owning connection drops without an explicit cleanup. Registrations are
// keyed by the publisher's session id and are process-local: the transport
// that owns the connection calls FireDisconnect when it detects the drop.
type PresenceStore interface {
	Write(ctx context.Context, rec *domain.PresenceRecord) error
	Merge(ctx context.Context, entityID string, fields map[string]interface{}) error
	Read(ctx context.Context, entityID string) (*domain.PresenceRecord, error)
	List(ctx context.Context) ([]*domain.PresenceRecord, error)
	Delete(ctx context.Context, entityID string) error

	// Watch subscribes to every record change. The returned function
	// cancels the subscription.
	Watch(ctx context.Context, fn WatchFunc) (func(), error)

	RegisterOnDisconnect(sessionID string, rec *domain.PresenceRecord)
	CancelOnDisconnect(sessionID string)
	FireDisconnect(ctx context.Context, sessionID string)
}

// disconnectRegistry holds the pending on-disconnect writes for live
// sessions. Shared by the store implementations.
type disconnectRegistry struct {
	mu      sync.Mutex
	pending map[string]*domain.PresenceRecord // sessionID -> record to write
}

func newDisconnectRegistry() *disconnectRegistry {
	return &disconnectRegistry{pending: make(map[string]*domain.PresenceRecord)}
}

func (d *disconnectRegistry) register(sessionID string, rec *domain.PresenceRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[sessionID] = rec
}

func (d *disconnectRegistry) cancel(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, sessionID)
}

// take removes and returns the registered write, if any
func (d *disconnectRegistry) take(sessionID string) *domain.PresenceRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.pending[sessionID]
	if !ok {
		return nil
	}
	delete(d.pending, sessionID)
	return rec
}
