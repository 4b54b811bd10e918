package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
)

const (
	presenceKeyPrefix = "presence:entity:"
	presenceChannel   = "presence:events"
)

// RedisStore is the production PresenceStore. Each entity's record is a
// JSON value under its own key and every write is fanned out to watchers
// over a pub/sub channel, so all service instances observe the same
// stream. On-disconnect registrations stay process-local because the
// registering connection lives in this process.
type RedisStore struct {
	client   *redis.Client
	registry *disconnectRegistry
	logger   *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:   client,
		registry: newDisconnectRegistry(),
		logger:   logger,
	}
}

func (s *RedisStore) Write(ctx context.Context, rec *domain.PresenceRecord) error {
	if rec.EntityID == "" {
		return fmt.Errorf("presence record has no entity id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}
	if err := s.client.Set(ctx, presenceKeyPrefix+rec.EntityID, raw, 0).Err(); err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventPut, Record: rec})
	return nil
}

func (s *RedisStore) Merge(ctx context.Context, entityID string, fields map[string]interface{}) error {
	current, err := s.Read(ctx, entityID)
	if err != nil {
		if err != ErrNotFound {
			return err
		}
		current = &domain.PresenceRecord{EntityID: entityID}
	}
	merged, err := mergeRecord(current, fields)
	if err != nil {
		return err
	}
	merged.EntityID = entityID
	return s.Write(ctx, merged)
}

func (s *RedisStore) Read(ctx context.Context, entityID string) (*domain.PresenceRecord, error) {
	raw, err := s.client.Get(ctx, presenceKeyPrefix+entityID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec domain.PresenceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode presence record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*domain.PresenceRecord, error) {
	var records []*domain.PresenceRecord

	iter := s.client.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // deleted between scan and get
			}
			return nil, err
		}
		var rec domain.PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// One malformed record must not hide the rest
			s.logger.Warn("Skipping malformed presence record",
				zap.String("key", iter.Val()),
				zap.Error(err))
			continue
		}
		records = append(records, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, entityID string) error {
	deleted, err := s.client.Del(ctx, presenceKeyPrefix+entityID).Result()
	if err != nil {
		return err
	}
	if deleted > 0 {
		// Watchers on every instance drop their cached copy
		s.publish(ctx, Event{Type: EventDelete, Record: &domain.PresenceRecord{EntityID: entityID}})
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context, fn WatchFunc) (func(), error) {
	sub := s.client.Subscribe(ctx, presenceChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Record == nil {
				s.logger.Warn("Dropping malformed presence event", zap.Error(err))
				continue
			}
			fn(ev)
		}
	}()

	return func() { _ = sub.Close() }, nil
}

func (s *RedisStore) RegisterOnDisconnect(sessionID string, rec *domain.PresenceRecord) {
	s.registry.register(sessionID, cloneRecord(rec))
}

func (s *RedisStore) CancelOnDisconnect(sessionID string) {
	s.registry.cancel(sessionID)
}

func (s *RedisStore) FireDisconnect(ctx context.Context, sessionID string) {
	rec := s.registry.take(sessionID)
	if rec == nil {
		return
	}
	if err := s.Write(ctx, rec); err != nil {
		s.logger.Error("Failed to apply disconnect write",
			zap.String("entityId", rec.EntityID),
			zap.String("sessionId", sessionID),
			zap.Error(err))
	}
}

func (s *RedisStore) publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to encode presence event", zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, presenceChannel, raw).Err(); err != nil {
		s.logger.Error("Failed to broadcast presence event", zap.Error(err))
	}
}
