package presence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/store"
)

const (
	// DefaultActiveWindow is the strict liveness threshold
	DefaultActiveWindow = 30 * time.Second
	// DefaultVisibleWindow keeps recently-seen entities on the map to
	// avoid flicker on minor heartbeat gaps
	DefaultVisibleWindow = 10 * time.Minute
)

// TrackerConfig carries the classification thresholds and the clock
type TrackerConfig struct {
	ActiveWindow  time.Duration
	VisibleWindow time.Duration
	Now           func() time.Time
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = DefaultActiveWindow
	}
	if c.VisibleWindow <= 0 {
		c.VisibleWindow = DefaultVisibleWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// TrackedEntity is the classified, render-ready view of one presence record
type TrackedEntity struct {
	EntityID     string                `json:"entityId"`
	Lat          float64               `json:"lat"`
	Lng          float64               `json:"lng"`
	Status       domain.PresenceStatus `json:"status"`
	DisplayName  string                `json:"displayName,omitempty"`
	DeviceName   string                `json:"deviceName,omitempty"`
	Active       bool                  `json:"active"`
	LastActivity time.Time             `json:"lastActivity"`
}

// Filter selects which entities a subscriber is interested in: an explicit
// id set, or everything except the subscriber's own id (device-tracking
// mode).
type Filter struct {
	IDs       []string
	AllOthers bool
	ExcludeID string
}

func (f Filter) matches(entityID string) bool {
	if f.AllOthers {
		return entityID != f.ExcludeID
	}
	for _, id := range f.IDs {
		if id == entityID {
			return true
		}
	}
	return false
}

type subscription struct {
	filter  Filter
	fn      func([]TrackedEntity)
	lastSig string
}

// Tracker turns the raw presence stream into a de-duplicated, classified
// list of trackable entities. It keeps only the latest record per entity
// id, classifies liveness against server-assigned timestamps and emits a
// minimized diff: a subscriber is only called when its visible set of
// (id, lat, lng, status) tuples actually changed.
type Tracker struct {
	store  store.PresenceStore
	logger *zap.Logger
	cfg    TrackerConfig

	mu      sync.RWMutex
	records map[string]*domain.PresenceRecord
	subs    map[int]*subscription
	nextID  int
	cancel  func()
}

func NewTracker(st store.PresenceStore, logger *zap.Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		store:   st,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		records: make(map[string]*domain.PresenceRecord),
		subs:    make(map[int]*subscription),
	}
}

// Start seeds the tracker from the store and subscribes to the live
// stream. It must be called once before Subscribe or Snapshot.
func (t *Tracker) Start(ctx context.Context) error {
	records, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed tracker: %w", err)
	}

	t.mu.Lock()
	for _, rec := range records {
		if rec.EntityID != "" {
			t.records[rec.EntityID] = rec
		}
	}
	t.mu.Unlock()

	cancel, err := t.store.Watch(ctx, t.onEvent)
	if err != nil {
		return fmt.Errorf("failed to watch presence store: %w", err)
	}
	t.cancel = cancel
	return nil
}

// Stop cancels the store subscription
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Subscribe registers a callback for a filtered live view. The callback
// fires immediately with the current snapshot and then on every effective
// change. The returned function cancels the subscription.
func (t *Tracker) Subscribe(filter Filter, fn func([]TrackedEntity)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	sub := &subscription{filter: filter, fn: fn}
	t.subs[id] = sub
	entities := t.viewLocked(filter)
	sub.lastSig = signature(entities)
	t.mu.Unlock()

	fn(entities)

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Snapshot returns the current classified view for a filter
func (t *Tracker) Snapshot(filter Filter) []TrackedEntity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewLocked(filter)
}

// Classify applies the tolerance-window rules to a single record. It
// returns the classified entity and whether the record is shown at all:
// active when fresh and live with a valid location, still shown while
// within the visible window, excluded afterwards or when the location is
// unusable.
func (t *Tracker) Classify(rec *domain.PresenceRecord) (TrackedEntity, bool) {
	if rec == nil || rec.EntityID == "" || !rec.HasLocation() {
		return TrackedEntity{}, false
	}

	last, ok := rec.LastActivity()
	if !ok {
		// Missing timestamps read as absent activity, not as now
		return TrackedEntity{}, false
	}

	activity := t.cfg.Now().Sub(last)
	if activity >= t.cfg.VisibleWindow {
		return TrackedEntity{}, false
	}

	entity := TrackedEntity{
		EntityID:     rec.EntityID,
		Lat:          *rec.Lat,
		Lng:          *rec.Lng,
		Status:       rec.Status,
		DisplayName:  rec.DisplayName,
		DeviceName:   rec.DeviceName,
		Active:       activity < t.cfg.ActiveWindow && rec.IsLive(),
		LastActivity: last,
	}
	return entity, true
}

// onEvent ingests one store event: dedupe by entity id (latest record
// wins), evict on delete and re-emit to affected subscribers. Deletes
// from the cleanup job are what keep the record map bounded.
func (t *Tracker) onEvent(ev store.Event) {
	rec := ev.Record
	if rec == nil || rec.EntityID == "" {
		return
	}

	t.mu.Lock()
	if ev.Type == store.EventDelete {
		delete(t.records, rec.EntityID)
	} else {
		t.records[rec.EntityID] = rec
	}

	type emit struct {
		fn       func([]TrackedEntity)
		entities []TrackedEntity
	}
	var emits []emit
	for _, sub := range t.subs {
		if !sub.filter.matches(rec.EntityID) {
			continue
		}
		entities := t.viewLocked(sub.filter)
		sig := signature(entities)
		if sig == sub.lastSig {
			// Coalesce write bursts: nothing visible changed
			continue
		}
		sub.lastSig = sig
		emits = append(emits, emit{fn: sub.fn, entities: entities})
	}
	t.mu.Unlock()

	for _, e := range emits {
		e.fn(e.entities)
	}
}

// viewLocked builds the classified, stable-ordered view for a filter.
// Caller holds t.mu.
func (t *Tracker) viewLocked(filter Filter) []TrackedEntity {
	entities := make([]TrackedEntity, 0)
	for id, rec := range t.records {
		if !filter.matches(id) {
			continue
		}
		entity, ok := t.Classify(rec)
		if !ok {
			continue
		}
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityID < entities[j].EntityID
	})
	return entities
}

// signature folds the render-relevant tuple of every visible entity, so
// update storms that change nothing visible are suppressed.
func signature(entities []TrackedEntity) string {
	var b strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&b, "%s|%.6f|%.6f|%s;", e.EntityID, e.Lat, e.Lng, e.Status)
	}
	return b.String()
}
