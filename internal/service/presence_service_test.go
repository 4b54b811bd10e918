package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/presence"
	"campus-nav-api/internal/response"
	"campus-nav-api/internal/store"
)

// failingReadStore simulates an unreachable presence backend
type failingReadStore struct {
	*store.MemoryStore
}

func (s *failingReadStore) Read(ctx context.Context, entityID string) (*domain.PresenceRecord, error) {
	return nil, errors.New("connection refused")
}

func newPresenceService(t *testing.T, st store.PresenceStore) *PresenceService {
	t.Helper()
	tracker := presence.NewTracker(st, zap.NewNop(), presence.TrackerConfig{})
	return NewPresenceService(st, tracker, nil, zap.NewNop())
}

func TestPresenceService_GetEntity(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	ms := time.Now().UnixMilli()
	_ = st.Write(ctx, &domain.PresenceRecord{
		EntityID:   "user-1",
		Lat:        domain.Float64Ptr(1),
		Lng:        domain.Float64Ptr(2),
		LastUpdate: domain.Int64Ptr(ms),
	})

	svc := newPresenceService(t, st)

	rec, err := svc.GetEntity(ctx, "user-1")
	assert.NoError(t, err)
	assert.Equal(t, "user-1", rec.EntityID)
}

func TestPresenceService_GetEntityNotFound(t *testing.T) {
	svc := newPresenceService(t, store.NewMemoryStore())

	_, err := svc.GetEntity(context.Background(), "ghost")
	var appErr *response.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, response.ErrCodeNotFound, appErr.Code)
}

func TestPresenceService_GetEntityStoreFailureIsUpstream(t *testing.T) {
	st := &failingReadStore{MemoryStore: store.NewMemoryStore()}
	svc := newPresenceService(t, st)

	_, err := svc.GetEntity(context.Background(), "user-1")
	var appErr *response.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, response.ErrCodeUpstream, appErr.Code)
}
