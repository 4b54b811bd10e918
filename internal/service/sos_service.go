package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/dto"
	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/repository"
	"campus-nav-api/internal/response"
	"campus-nav-api/internal/store"
)

// GuardSelector assigns the nearest available guard, or nil when none
// qualifies
type GuardSelector interface {
	SelectNearest(ctx context.Context, requesterID string) (*domain.GuardAssignment, error)
}

// SOSService owns the lifecycle of the per-user emergency flag and its
// one-time guard assignment
type SOSService interface {
	Enable(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error)
	Disable(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*dto.SOSResponse, error)
	ListActive(ctx context.Context) ([]*dto.SOSResponse, error)
	GetAssignedTo(ctx context.Context, guardID string) (*dto.SOSResponse, error)
}

type sosServiceImpl struct {
	repo     repository.SOSRepository
	presence store.PresenceStore
	selector GuardSelector
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSOSService creates a new instance of SOSService
func NewSOSService(
	repo repository.SOSRepository,
	presence store.PresenceStore,
	selector GuardSelector,
	m *metrics.Metrics,
	logger *zap.Logger,
) SOSService {
	return &sosServiceImpl{
		repo:     repo,
		presence: presence,
		selector: selector,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Enable activates the emergency for the user. Guard selection runs as
// part of activation but its failure never blocks the flag itself: the
// session goes live with a null assignment and the error is logged.
// Re-activating while already active overwrites the session; the user id
// key guarantees a single row either way.
func (s *sosServiceImpl) Enable(ctx context.Context, userID string, req *dto.EnableSOSRequest) (*dto.SOSResponse, error) {
	if req == nil {
		req = &dto.EnableSOSRequest{}
	}

	location := req.Location
	requesterName := req.DisplayName
	if location == nil || requesterName == "" {
		if rec, err := s.presence.Read(ctx, userID); err == nil {
			if location == nil && rec.HasLocation() {
				location = &domain.LatLng{Lat: *rec.Lat, Lng: *rec.Lng}
			}
			if requesterName == "" {
				requesterName = rec.DisplayName
			}
		}
	}

	session := &domain.SOSSession{
		UserID:        userID,
		IsActive:      true,
		RequesterName: requesterName,
		Message:       req.Message,
		StartTime:     s.now(),
	}

	if location != nil {
		raw, err := json.Marshal(location)
		if err != nil {
			return nil, response.NewAppError(response.ErrCodeInternal, "Failed to encode location", err.Error())
		}
		session.Location = raw
	}

	assignment, err := s.selector.SelectNearest(ctx, userID)
	if err != nil {
		// Activation must go through regardless
		s.logger.Error("Guard selection failed, activating without assignment",
			zap.String("userId", userID),
			zap.Error(err))
		assignment = nil
	}
	if assignment != nil {
		raw, err := json.Marshal(assignment)
		if err != nil {
			s.logger.Error("Failed to encode guard assignment, activating without it",
				zap.String("userId", userID),
				zap.Error(err))
		} else {
			session.GuardAssigned = raw
		}
	}

	if err := s.repo.Upsert(ctx, session); err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to activate SOS", err.Error())
	}

	if s.metrics != nil {
		s.metrics.SOSActivationsTotal.Inc()
		if len(session.GuardAssigned) > 0 {
			s.metrics.GuardAssignmentsTotal.Inc()
		}
	}

	s.logger.Info("SOS activated",
		zap.String("userId", userID),
		zap.Bool("guardAssigned", len(session.GuardAssigned) > 0),
		zap.Bool("hasLocation", location != nil))

	return dto.FromSOSSession(session)
}

// Disable removes the session outright. Disabling an already-inactive
// user is a no-op.
func (s *sosServiceImpl) Disable(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return response.NewAppError(response.ErrCodeInternal, "Failed to cancel SOS", err.Error())
	}

	if s.metrics != nil {
		s.metrics.SOSCancellationsTotal.Inc()
	}

	s.logger.Info("SOS cancelled", zap.String("userId", userID))
	return nil
}

func (s *sosServiceImpl) Get(ctx context.Context, userID string) (*dto.SOSResponse, error) {
	session, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewAppError(response.ErrCodeNotFound, "No active SOS session", "")
		}
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to load SOS session", err.Error())
	}
	return dto.FromSOSSession(session)
}

func (s *sosServiceImpl) ListActive(ctx context.Context) ([]*dto.SOSResponse, error) {
	sessions, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to list SOS sessions", err.Error())
	}

	out := make([]*dto.SOSResponse, 0, len(sessions))
	for _, session := range sessions {
		resp, err := dto.FromSOSSession(session)
		if err != nil {
			// One corrupt row must not hide the rest of the dashboard
			s.logger.Warn("Skipping undecodable SOS session",
				zap.String("userId", session.UserID),
				zap.Error(err))
			continue
		}
		out = append(out, resp)
	}
	return out, nil
}

func (s *sosServiceImpl) GetAssignedTo(ctx context.Context, guardID string) (*dto.SOSResponse, error) {
	session, err := s.repo.FindByGuardID(ctx, guardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewAppError(response.ErrCodeNotFound, "No session assigned to this guard", "")
		}
		return nil, response.NewAppError(response.ErrCodeInternal, "Failed to load assigned session", err.Error())
	}
	return dto.FromSOSSession(session)
}
