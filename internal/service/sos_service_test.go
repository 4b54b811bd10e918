package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/dto"
	"campus-nav-api/internal/response"
	"campus-nav-api/internal/store"
)

// MockSOSRepository is an in-memory, func-overridable SOSRepository
type MockSOSRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.SOSSession

	UpsertFunc func(ctx context.Context, session *domain.SOSSession) error
	DeleteFunc func(ctx context.Context, userID string) error
}

func NewMockSOSRepository() *MockSOSRepository {
	return &MockSOSRepository{sessions: make(map[string]*domain.SOSSession)}
}

func (m *MockSOSRepository) Upsert(ctx context.Context, session *domain.SOSSession) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.UserID] = session
	return nil
}

func (m *MockSOSRepository) FindByUserID(ctx context.Context, userID string) (*domain.SOSSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (m *MockSOSRepository) FindActive(ctx context.Context) ([]*domain.SOSSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.SOSSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockSOSRepository) FindByGuardID(ctx context.Context, guardID string) (*domain.SOSSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if !s.IsActive || len(s.GuardAssigned) == 0 {
			continue
		}
		var assignment domain.GuardAssignment
		if err := json.Unmarshal(s.GuardAssigned, &assignment); err != nil {
			continue
		}
		if assignment.GuardID == guardID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockSOSRepository) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MockSOSRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MockGuardSelector is a func-field mock of GuardSelector
type MockGuardSelector struct {
	SelectNearestFunc func(ctx context.Context, requesterID string) (*domain.GuardAssignment, error)
}

func (m *MockGuardSelector) SelectNearest(ctx context.Context, requesterID string) (*domain.GuardAssignment, error) {
	if m.SelectNearestFunc != nil {
		return m.SelectNearestFunc(ctx, requesterID)
	}
	return nil, nil
}

func newTestSOSService(repo *MockSOSRepository, selector GuardSelector) (SOSService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	svc := NewSOSService(repo, st, selector, nil, zap.NewNop())
	return svc, st
}

func TestSOSService_EnableWithExplicitLocation(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})
	ctx := context.Background()

	resp, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location:    &domain.LatLng{Lat: 29.8647, Lng: 77.8963},
		Message:     "help near the library",
		DisplayName: "Asha",
	})
	assert.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "Asha", resp.RequesterName)
	assert.Equal(t, "help near the library", resp.Message)
	assert.NotNil(t, resp.Location)
	assert.Equal(t, 29.8647, resp.Location.Lat)
}

func TestSOSService_EnableAtMostOneSessionPerUser(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})
	ctx := context.Background()

	_, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 1, Lng: 1},
	})
	assert.NoError(t, err)

	// Re-activation overwrites, never duplicates
	resp, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 2, Lng: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, repo.Count())
	assert.Equal(t, 2.0, resp.Location.Lat)
}

func TestSOSService_EnableSucceedsWhenSelectorFails(t *testing.T) {
	repo := NewMockSOSRepository()
	selector := &MockGuardSelector{
		SelectNearestFunc: func(ctx context.Context, requesterID string) (*domain.GuardAssignment, error) {
			return nil, errors.New("selection exploded")
		},
	}
	svc, _ := newTestSOSService(repo, selector)

	resp, err := svc.Enable(context.Background(), "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 1, Lng: 1},
	})
	assert.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Nil(t, resp.GuardAssigned)
}

func TestSOSService_EnableEmbedsAssignment(t *testing.T) {
	repo := NewMockSOSRepository()
	selector := &MockGuardSelector{
		SelectNearestFunc: func(ctx context.Context, requesterID string) (*domain.GuardAssignment, error) {
			return &domain.GuardAssignment{
				GuardID:       "guard-1",
				GuardName:     "Near Guard",
				Distance:      82.5,
				GuardLocation: domain.LatLng{Lat: 29.8650, Lng: 77.8970},
				IsOnline:      true,
			}, nil
		},
	}
	svc, _ := newTestSOSService(repo, selector)

	resp, err := svc.Enable(context.Background(), "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 29.8647, Lng: 77.8963},
	})
	assert.NoError(t, err)
	assert.NotNil(t, resp.GuardAssigned)
	assert.Equal(t, "guard-1", resp.GuardAssigned.GuardID)
	assert.Equal(t, 82.5, resp.GuardAssigned.Distance)
}

func TestSOSService_EnableFillsLocationFromPresence(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, st := newTestSOSService(repo, &MockGuardSelector{})
	ctx := context.Background()

	_ = st.Write(ctx, &domain.PresenceRecord{
		EntityID:    "user-1",
		Lat:         domain.Float64Ptr(29.8647),
		Lng:         domain.Float64Ptr(77.8963),
		DisplayName: "Asha",
	})

	resp, err := svc.Enable(ctx, "user-1", nil)
	assert.NoError(t, err)
	assert.NotNil(t, resp.Location)
	assert.Equal(t, 29.8647, resp.Location.Lat)
	assert.Equal(t, "Asha", resp.RequesterName)
}

func TestSOSService_EnableWithoutAnyLocation(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})

	// No request location, no presence record: still activates
	resp, err := svc.Enable(context.Background(), "user-1", nil)
	assert.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Nil(t, resp.Location)
}

func TestSOSService_DisableRemovesSession(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})
	ctx := context.Background()

	_, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 1, Lng: 1},
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.Disable(ctx, "user-1"))
	assert.Equal(t, 0, repo.Count())

	_, err = svc.Get(ctx, "user-1")
	var appErr *response.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, response.ErrCodeNotFound, appErr.Code)
}

func TestSOSService_DisableIdempotent(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})

	assert.NoError(t, svc.Disable(context.Background(), "never-active"))
}

func TestSOSService_ListActiveSkipsCorruptRows(t *testing.T) {
	repo := NewMockSOSRepository()
	svc, _ := newTestSOSService(repo, &MockGuardSelector{})
	ctx := context.Background()

	_, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 1, Lng: 1},
	})
	assert.NoError(t, err)

	repo.sessions["user-2"] = &domain.SOSSession{
		UserID:   "user-2",
		IsActive: true,
		Location: []byte("{corrupt"),
	}

	active, err := svc.ListActive(ctx)
	assert.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, "user-1", active[0].UserID)
}

func TestSOSService_GetAssignedTo(t *testing.T) {
	repo := NewMockSOSRepository()
	selector := &MockGuardSelector{
		SelectNearestFunc: func(ctx context.Context, requesterID string) (*domain.GuardAssignment, error) {
			return &domain.GuardAssignment{GuardID: "guard-1"}, nil
		},
	}
	svc, _ := newTestSOSService(repo, selector)
	ctx := context.Background()

	_, err := svc.Enable(ctx, "user-1", &dto.EnableSOSRequest{
		Location: &domain.LatLng{Lat: 1, Lng: 1},
	})
	assert.NoError(t, err)

	resp, err := svc.GetAssignedTo(ctx, "guard-1")
	assert.NoError(t, err)
	assert.Equal(t, "user-1", resp.UserID)

	_, err = svc.GetAssignedTo(ctx, "guard-2")
	var appErr *response.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, response.ErrCodeNotFound, appErr.Code)
}
