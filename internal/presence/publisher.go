package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/store"
)

const (
	// DefaultHeartbeatInterval keeps a stationary publisher provably alive
	DefaultHeartbeatInterval = 3 * time.Second
	// DefaultWriteThrottle bounds location write amplification
	DefaultWriteThrottle = 100 * time.Millisecond
)

// PublisherConfig carries the timing knobs so tests can shrink intervals
// and pin the clock.
type PublisherConfig struct {
	HeartbeatInterval time.Duration
	WriteThrottle     time.Duration
	Now               func() time.Time
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.WriteThrottle <= 0 {
		c.WriteThrottle = DefaultWriteThrottle
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Publisher advertises one entity's live position to the presence store.
// Start registers a store-side disconnect write before the first online
// write, so the record cannot stay online after the owning connection
// truly drops: either Stop writes the offline state explicitly, or the
// transport fires the registered write.
//
// Each Start mints a fresh session id and overwrites whatever record the
// entity had before, regardless of who wrote it. Concurrent tabs for the
// same entity resolve by last write wins; the session id makes a
// superseded session's writes distinguishable but no merge is attempted.
type Publisher struct {
	store  store.PresenceStore
	logger *zap.Logger
	cfg    PublisherConfig

	entityID    string
	displayName string
	deviceName  string

	// wmu serializes store writes so a heartbeat or location write that
	// is in flight when Stop runs cannot land after the offline write.
	// Lock order is wmu before mu.
	wmu sync.Mutex

	mu        sync.Mutex
	sessionID string
	active    bool
	lastWrite time.Time
	stopBeat  context.CancelFunc
}

func NewPublisher(st store.PresenceStore, logger *zap.Logger, entityID string, cfg PublisherConfig) *Publisher {
	return &Publisher{
		store:    st,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		entityID: entityID,
	}
}

// SessionID returns the current publishing session id, empty when inactive
func (p *Publisher) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Active reports whether the publisher is currently publishing
func (p *Publisher) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start begins publishing: it registers the on-disconnect offline write,
// writes the initial online record under a fresh session id and starts
// the heartbeat loop. Calling Start while active supersedes the previous
// session.
func (p *Publisher) Start(ctx context.Context, lat, lng float64, displayName, deviceName string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	if p.active {
		// Superseding our own session: drop the old heartbeat and its
		// pending disconnect write first
		p.store.CancelOnDisconnect(p.sessionID)
		p.stopLocked()
	}

	sessionID := uuid.New().String()
	now := p.cfg.Now()
	nowMs := now.UnixMilli()

	p.displayName = displayName
	p.deviceName = deviceName

	// The disconnect write preserves the last known coordinates so the
	// tolerance window in the tracker can still place the entity.
	p.store.RegisterOnDisconnect(sessionID, &domain.PresenceRecord{
		EntityID:         p.entityID,
		Lat:              domain.Float64Ptr(lat),
		Lng:              domain.Float64Ptr(lng),
		Status:           domain.PresenceStatusOffline,
		IsOnline:         domain.BoolPtr(false),
		ConnectionState:  domain.ConnectionDisconnected,
		LastUpdate:       domain.Int64Ptr(nowMs),
		Heartbeat:        domain.Int64Ptr(nowMs),
		SessionID:        sessionID,
		DisplayName:      displayName,
		DeviceName:       deviceName,
		DisconnectReason: domain.DisconnectConnectionLost,
	})

	rec := p.onlineRecord(sessionID, lat, lng, nowMs)
	if err := p.store.Write(ctx, rec); err != nil {
		p.store.CancelOnDisconnect(sessionID)
		p.mu.Unlock()
		return err
	}

	beatCtx, cancel := context.WithCancel(context.Background())
	p.sessionID = sessionID
	p.active = true
	p.lastWrite = now
	p.stopBeat = cancel
	p.mu.Unlock()

	go p.heartbeatLoop(beatCtx)

	p.logger.Info("Presence publishing started",
		zap.String("entityId", p.entityID),
		zap.String("sessionId", sessionID))
	return nil
}

// UpdateLocation publishes a new position. It is a no-op unless publishing
// is active and is throttled to one store write per throttle interval.
// Every accepted write refreshes both activity timestamps and forces the
// record back to online.
func (p *Publisher) UpdateLocation(ctx context.Context, lat, lng float64) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	now := p.cfg.Now()
	if now.Sub(p.lastWrite) < p.cfg.WriteThrottle {
		p.mu.Unlock()
		return nil
	}
	p.lastWrite = now
	rec := p.onlineRecord(p.sessionID, lat, lng, now.UnixMilli())
	p.mu.Unlock()

	if err := p.store.Write(ctx, rec); err != nil {
		// Soft failure: the next location tick or heartbeat retries
		p.logger.Warn("Presence location write failed",
			zap.String("entityId", p.entityID),
			zap.Error(err))
	}
	return nil
}

// Stop ends publishing and writes the offline state explicitly, tagging
// the given disconnect reason. It is idempotent and cancels both the
// heartbeat loop and the registered disconnect write.
func (p *Publisher) Stop(ctx context.Context, reason string) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	sessionID := p.sessionID
	nowMs := p.cfg.Now().UnixMilli()
	p.stopLocked()
	p.mu.Unlock()

	p.store.CancelOnDisconnect(sessionID)

	if reason == "" {
		reason = domain.DisconnectManual
	}
	err := p.store.Merge(ctx, p.entityID, map[string]interface{}{
		"status":           string(domain.PresenceStatusOffline),
		"isOnline":         false,
		"connectionState":  string(domain.ConnectionDisconnected),
		"lastUpdate":       nowMs,
		"disconnectReason": reason,
	})
	if err != nil {
		p.logger.Warn("Presence offline write failed",
			zap.String("entityId", p.entityID),
			zap.Error(err))
	}

	p.logger.Info("Presence publishing stopped",
		zap.String("entityId", p.entityID),
		zap.String("sessionId", sessionID),
		zap.String("reason", reason))
}

// Abandon cancels publishing without writing the offline state. The
// transport calls it when the connection already dropped and the
// registered disconnect write is about to take over; it returns the
// session id to fire, or empty when nothing was active. Taking wmu
// drains any in-flight write so the disconnect write lands last.
func (p *Publisher) Abandon() string {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return ""
	}
	sessionID := p.sessionID
	p.stopLocked()
	return sessionID
}

// stopLocked cancels the heartbeat and clears the active state.
// Caller holds p.mu.
func (p *Publisher) stopLocked() {
	if p.stopBeat != nil {
		p.stopBeat()
		p.stopBeat = nil
	}
	p.active = false
	p.sessionID = ""
}

func (p *Publisher) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

// beat refreshes the activity timestamps even when the entity is
// stationary, distinguishing "stationary but alive" from "gone".
// The active state is re-checked under wmu: a beat that raced a Stop
// must not write after the offline record landed.
func (p *Publisher) beat(ctx context.Context) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	nowMs := p.cfg.Now().UnixMilli()
	p.mu.Unlock()

	err := p.store.Merge(ctx, p.entityID, map[string]interface{}{
		"status":     string(domain.PresenceStatusOnline),
		"isOnline":   true,
		"heartbeat":  nowMs,
		"lastUpdate": nowMs,
	})
	if err != nil {
		// Retried on the next tick
		p.logger.Warn("Presence heartbeat failed",
			zap.String("entityId", p.entityID),
			zap.Error(err))
	}
}

func (p *Publisher) onlineRecord(sessionID string, lat, lng float64, nowMs int64) *domain.PresenceRecord {
	return &domain.PresenceRecord{
		EntityID:        p.entityID,
		Lat:             domain.Float64Ptr(lat),
		Lng:             domain.Float64Ptr(lng),
		Status:          domain.PresenceStatusOnline,
		IsOnline:        domain.BoolPtr(true),
		ConnectionState: domain.ConnectionActive,
		LastUpdate:      domain.Int64Ptr(nowMs),
		Heartbeat:       domain.Int64Ptr(nowMs),
		SessionID:       sessionID,
		DisplayName:     p.displayName,
		DeviceName:      p.deviceName,
	}
}
