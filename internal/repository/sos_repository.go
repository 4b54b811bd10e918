package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-nav-api/internal/database"
	"campus-nav-api/internal/domain"
)

// SOSRepository persists SOS sessions keyed by user id. The user id being
// the primary key is what structurally enforces at most one active
// session per user.
type SOSRepository interface {
	Upsert(ctx context.Context, session *domain.SOSSession) error
	FindByUserID(ctx context.Context, userID string) (*domain.SOSSession, error)
	FindActive(ctx context.Context) ([]*domain.SOSSession, error)
	FindByGuardID(ctx context.Context, guardID string) (*domain.SOSSession, error)
	Delete(ctx context.Context, userID string) error
}

type sosRepositoryImpl struct {
	db *gorm.DB
}

// NewSOSRepository creates a new instance of SOSRepository
func NewSOSRepository(db *gorm.DB) SOSRepository {
	return &sosRepositoryImpl{db: db}
}

// conn resolves the connection lazily so a database that came up after
// startup (async retry) is still picked up.
func (r *sosRepositoryImpl) conn(ctx context.Context) (*gorm.DB, error) {
	db := r.db
	if db == nil {
		db = database.GetDB()
	}
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}
	return db.WithContext(ctx), nil
}

// Upsert writes the session, overwriting any existing one for the same
// user. Re-activation is a fresh overwrite, never a second row.
func (r *sosRepositoryImpl) Upsert(ctx context.Context, session *domain.SOSSession) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "requester_name", "message", "start_time", "location", "guard_assigned",
		}),
	}).Create(session).Error
}

func (r *sosRepositoryImpl) FindByUserID(ctx context.Context, userID string) (*domain.SOSSession, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var session domain.SOSSession
	if err := db.First(&session, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sosRepositoryImpl) FindActive(ctx context.Context) ([]*domain.SOSSession, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var sessions []*domain.SOSSession
	err = db.
		Where("is_active = ?", true).
		Order("start_time ASC").
		Find(&sessions).Error
	return sessions, err
}

// FindByGuardID returns the active session whose embedded assignment
// names the given guard, if any
func (r *sosRepositoryImpl) FindByGuardID(ctx context.Context, guardID string) (*domain.SOSSession, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var session domain.SOSSession
	err = db.
		Where("is_active = ?", true).
		Where(datatypes.JSONQuery("guard_assigned").Equals(guardID, "guardId")).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the session outright; cancelling an SOS leaves no row
// behind
func (r *sosRepositoryImpl) Delete(ctx context.Context, userID string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	return db.Delete(&domain.SOSSession{}, "user_id = ?", userID).Error
}
