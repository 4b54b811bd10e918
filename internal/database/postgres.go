package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"campus-nav-api/internal/domain"
)

var (
	db    *gorm.DB
	dbMux sync.RWMutex
)

// InitPostgres connects to PostgreSQL and runs migrations. Connection
// failure returns an error without killing the process so the pod can
// come up before its dependencies.
func InitPostgres(dsn, env string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is not configured")
	}

	logLevel := gormlogger.Silent
	if env == "dev" {
		logLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	var conn *gorm.DB

	done := make(chan bool, 1)
	go func() {
		conn, err = gorm.Open(postgres.Open(dsn), gormConfig)
		done <- true
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("database connection timeout")
	case <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbMux.Lock()
	db = conn
	dbMux.Unlock()

	logger.Info("postgres connected and migrated")
	return conn, nil
}

// InitPostgresAsync keeps retrying the connection in the background
// without blocking startup.
func InitPostgresAsync(dsn, env string, retryInterval time.Duration, logger *zap.Logger) {
	go func() {
		for {
			if IsDBReady() {
				return
			}

			_, err := InitPostgres(dsn, env, logger)
			if err != nil {
				logger.Warn("database connection failed, retrying",
					zap.Duration("retry_in", retryInterval),
					zap.Error(err))
				time.Sleep(retryInterval)
				continue
			}
			return
		}
	}()
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.SOSSession{},
	)
}

// GetDB returns the database instance (nil if not connected).
func GetDB() *gorm.DB {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db
}

// IsDBReady reports whether the database connection is established.
func IsDBReady() bool {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db != nil
}
