package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/presence"
	"campus-nav-api/internal/response"
	"campus-nav-api/internal/store"
)

// PresenceService exposes classified presence reads for map bootstrap;
// the live stream itself flows over the realtime channel.
type PresenceService struct {
	store   store.PresenceStore
	tracker *presence.Tracker
	logger  *zap.Logger
}

func NewPresenceService(
	st store.PresenceStore,
	tracker *presence.Tracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PresenceService {
	s := &PresenceService{
		store:   st,
		tracker: tracker,
		logger:  logger,
	}

	if m != nil {
		// Keep the online gauge following the classified view
		tracker.Subscribe(presence.Filter{AllOthers: true}, func(entities []presence.TrackedEntity) {
			active := 0
			for _, e := range entities {
				if e.Active {
					active++
				}
			}
			m.PresenceEntitiesOnline.Set(float64(active))
		})
	}

	return s
}

// GetTrackable returns every entity currently shown on the map
func (s *PresenceService) GetTrackable(ctx context.Context) []presence.TrackedEntity {
	return s.tracker.Snapshot(presence.Filter{AllOthers: true})
}

// GetEntity returns one entity's raw presence record
func (s *PresenceService) GetEntity(ctx context.Context, entityID string) (*domain.PresenceRecord, error) {
	rec, err := s.store.Read(ctx, entityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, response.NewAppError(response.ErrCodeNotFound, "Presence record not found", "")
		}
		// The store is a remote dependency in production; surface its
		// failures as upstream, not internal
		return nil, response.NewAppError(response.ErrCodeUpstream, "Presence store unavailable", err.Error())
	}
	return rec, nil
}
