package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InitRedis connects to Redis. Returns nil on failure so callers can
// fall back to in-memory presence storage.
func InitRedis(host string, port int, password string, dbNum int, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       dbNum,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to redis", zap.Error(err))
		return nil
	}

	logger.Info("redis connected", zap.String("addr", client.Options().Addr))
	return client
}
