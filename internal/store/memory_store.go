package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"campus-nav-api/internal/domain"
)

// MemoryStore is an in-process PresenceStore. It backs dev mode when no
// Redis is configured and the unit tests of everything layered on top.
type MemoryStore struct {
	registry *disconnectRegistry

	mu       sync.RWMutex
	records  map[string]*domain.PresenceRecord
	watchers map[int]WatchFunc
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registry: newDisconnectRegistry(),
		records:  make(map[string]*domain.PresenceRecord),
		watchers: make(map[int]WatchFunc),
	}
}

func (s *MemoryStore) Write(ctx context.Context, rec *domain.PresenceRecord) error {
	if rec.EntityID == "" {
		return fmt.Errorf("presence record has no entity id")
	}
	cp := cloneRecord(rec)

	s.mu.Lock()
	s.records[cp.EntityID] = cp
	s.mu.Unlock()

	s.notify(EventPut, cp)
	return nil
}

func (s *MemoryStore) Merge(ctx context.Context, entityID string, fields map[string]interface{}) error {
	s.mu.Lock()
	current, ok := s.records[entityID]
	if !ok {
		current = &domain.PresenceRecord{EntityID: entityID}
	}
	merged, err := mergeRecord(current, fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged.EntityID = entityID
	s.records[entityID] = merged
	s.mu.Unlock()

	s.notify(EventPut, merged)
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, entityID string) (*domain.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[entityID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*domain.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, entityID string) error {
	s.mu.Lock()
	_, existed := s.records[entityID]
	delete(s.records, entityID)
	s.mu.Unlock()

	if existed {
		s.notify(EventDelete, &domain.PresenceRecord{EntityID: entityID})
	}
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, fn WatchFunc) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) RegisterOnDisconnect(sessionID string, rec *domain.PresenceRecord) {
	s.registry.register(sessionID, cloneRecord(rec))
}

func (s *MemoryStore) CancelOnDisconnect(sessionID string) {
	s.registry.cancel(sessionID)
}

func (s *MemoryStore) FireDisconnect(ctx context.Context, sessionID string) {
	rec := s.registry.take(sessionID)
	if rec == nil {
		return
	}
	// Errors on the disconnect path have nowhere to go; Write on the
	// memory store only fails on an empty entity id.
	_ = s.Write(ctx, rec)
}

func (s *MemoryStore) notify(typ EventType, rec *domain.PresenceRecord) {
	s.mu.RLock()
	fns := make([]WatchFunc, 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(Event{Type: typ, Record: cloneRecord(rec)})
	}
}

func cloneRecord(rec *domain.PresenceRecord) *domain.PresenceRecord {
	cp := *rec
	if rec.Lat != nil {
		cp.Lat = domain.Float64Ptr(*rec.Lat)
	}
	if rec.Lng != nil {
		cp.Lng = domain.Float64Ptr(*rec.Lng)
	}
	if rec.IsOnline != nil {
		cp.IsOnline = domain.BoolPtr(*rec.IsOnline)
	}
	if rec.LastUpdate != nil {
		cp.LastUpdate = domain.Int64Ptr(*rec.LastUpdate)
	}
	if rec.Heartbeat != nil {
		cp.Heartbeat = domain.Int64Ptr(*rec.Heartbeat)
	}
	return &cp
}

// mergeRecord overlays partial fields onto the current record through its
// JSON representation, so field names match the wire format.
func mergeRecord(current *domain.PresenceRecord, fields map[string]interface{}) (*domain.PresenceRecord, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	raw, err = json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var merged domain.PresenceRecord
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}
