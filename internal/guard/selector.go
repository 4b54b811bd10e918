package guard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/store"
)

// GuardRole is the role tag looked up in the role directory
const GuardRole = "guard"

// RoleDirectory resolves role tags to entity ids. An empty result is a
// valid, expected state and triggers the fallback candidate policy.
type RoleDirectory interface {
	GetUserIDsByRole(ctx context.Context, role string) ([]string, error)
}

// DistanceEstimator computes a routed distance in meters between two
// points. Any error degrades that one candidate to the haversine fallback.
type DistanceEstimator interface {
	Distance(ctx context.Context, from, to domain.LatLng) (float64, error)
}

// DefaultActiveWindow bounds how old a candidate's last activity may be
const DefaultActiveWindow = 30 * time.Second

// SelectorConfig carries the clock for assignment timestamps, the
// candidate activity window and the optional metrics sink
type SelectorConfig struct {
	Now          func() time.Time
	ActiveWindow time.Duration
	Metrics      *metrics.Metrics
}

// Selector picks the single nearest available guard for a requester, or
// nil when none qualifies. Selection is best-effort: it has no fatal
// failure mode beyond a missing requester location.
type Selector struct {
	store        store.PresenceStore
	roles        RoleDirectory
	routing      DistanceEstimator
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	activeWindow time.Duration
}

func NewSelector(st store.PresenceStore, roles RoleDirectory, routing DistanceEstimator, logger *zap.Logger, cfg SelectorConfig) *Selector {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	window := cfg.ActiveWindow
	if window <= 0 {
		window = DefaultActiveWindow
	}
	return &Selector{
		store:        st,
		roles:        roles,
		routing:      routing,
		logger:       logger,
		metrics:      cfg.Metrics,
		now:          now,
		activeWindow: window,
	}
}

// SelectNearest assigns the closest available guard to the requester.
// A nil assignment with a nil error means no guard is available, which is
// a legitimate outcome, not a failure. The operation fails closed only
// when the requester's own location cannot be resolved.
func (s *Selector) SelectNearest(ctx context.Context, requesterID string) (*domain.GuardAssignment, error) {
	requester, err := s.store.Read(ctx, requesterID)
	if err != nil {
		s.logger.Warn("Requester presence unavailable, skipping guard assignment",
			zap.String("requesterId", requesterID),
			zap.Error(err))
		return nil, nil
	}
	if !requester.HasLocation() {
		s.logger.Warn("Requester has no usable location, skipping guard assignment",
			zap.String("requesterId", requesterID))
		return nil, nil
	}
	from := domain.LatLng{Lat: *requester.Lat, Lng: *requester.Lng}

	candidates := s.candidates(ctx, requesterID)
	if len(candidates) == 0 {
		s.logger.Info("No available guard candidates",
			zap.String("requesterId", requesterID))
		return nil, nil
	}

	var best *domain.PresenceRecord
	bestDistance := 0.0
	for _, candidate := range candidates {
		to := domain.LatLng{Lat: *candidate.Lat, Lng: *candidate.Lng}
		distance := s.distance(ctx, from, to)
		// Strictly-less keeps first-seen order on exact ties
		if best == nil || distance < bestDistance {
			best = candidate
			bestDistance = distance
		}
	}

	assignment := &domain.GuardAssignment{
		GuardID:       best.EntityID,
		GuardName:     best.DisplayName,
		Distance:      bestDistance,
		GuardLocation: domain.LatLng{Lat: *best.Lat, Lng: *best.Lng},
		IsOnline:      true,
		Status:        string(best.Status),
		AssignedAt:    s.now(),
	}

	s.logger.Info("Guard assigned",
		zap.String("requesterId", requesterID),
		zap.String("guardId", assignment.GuardID),
		zap.Float64("distanceMeters", assignment.Distance))
	return assignment, nil
}

// candidates builds the strict-filtered candidate set: role-tagged guards
// when the directory has any, otherwise every other entity with presence.
// The all-others fallback covers deployments with no role metadata yet.
func (s *Selector) candidates(ctx context.Context, requesterID string) []*domain.PresenceRecord {
	guardIDs, err := s.roles.GetUserIDsByRole(ctx, GuardRole)
	if err != nil {
		s.logger.Warn("Role directory lookup failed, falling back to all entities",
			zap.Error(err))
		guardIDs = nil
	}

	if len(guardIDs) > 0 {
		candidates := make([]*domain.PresenceRecord, 0, len(guardIDs))
		for _, id := range guardIDs {
			if id == requesterID {
				continue
			}
			rec, err := s.store.Read(ctx, id)
			if err != nil {
				continue
			}
			if s.available(rec) {
				candidates = append(candidates, rec)
			}
		}
		return candidates
	}

	records, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("Presence listing failed during guard selection", zap.Error(err))
		return nil
	}
	candidates := make([]*domain.PresenceRecord, 0, len(records))
	for _, rec := range records {
		if rec.EntityID == requesterID {
			continue
		}
		if s.available(rec) {
			candidates = append(candidates, rec)
		}
	}
	return candidates
}

// available is the strict online filter: unlike the tracker's tolerance
// window, a candidate must be actively connected right now, with a
// heartbeat inside the active window. A lingering connectionState from a
// crashed client does not qualify.
func (s *Selector) available(rec *domain.PresenceRecord) bool {
	if !rec.HasLocation() ||
		rec.ConnectionState != domain.ConnectionActive ||
		rec.IsOnline == nil || !*rec.IsOnline {
		return false
	}
	last, ok := rec.LastActivity()
	if !ok {
		return false
	}
	return s.now().Sub(last) < s.activeWindow
}

// distance tries the routing API first and degrades to haversine for this
// candidate only, so one bad network call cannot abort the selection.
func (s *Selector) distance(ctx context.Context, from, to domain.LatLng) float64 {
	if s.routing != nil {
		d, err := s.routing.Distance(ctx, from, to)
		if err == nil && d >= 0 {
			return d
		}
		if err != nil {
			s.logger.Warn("Routing distance failed, using haversine fallback",
				zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.DistanceFallbacksTotal.Inc()
		}
	}
	return Haversine(from.Lat, from.Lng, to.Lat, to.Lng)
}
