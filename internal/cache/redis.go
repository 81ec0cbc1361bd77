package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wanderplan/entitlements/internal/config"
	"github.com/wanderplan/entitlements/internal/models"
)

const pendingKey = "entitlements:pending"

// Journal — redis-очередь entitlement-записей, не доехавших до хранилища.
type Journal struct {
	Db *redis.Client
}

func InitServer(ctx context.Context, cfg config.RedisConnection) (*Journal, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Journal{Db: db}, nil
}

func (j *Journal) Push(ctx context.Context, rec models.EntitlementRecord) error {
	const op = "cache.Push"
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := j.Db.RPush(ctx, pendingKey, data).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (j *Journal) Pop(ctx context.Context) (models.EntitlementRecord, bool, error) {
	const op = "cache.Pop"
	val, err := j.Db.LPop(ctx, pendingKey).Result()
	if err == redis.Nil {
		return models.EntitlementRecord{}, false, nil
	}
	if err != nil {
		return models.EntitlementRecord{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var rec models.EntitlementRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return models.EntitlementRecord{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return rec, true, nil
}

func (j *Journal) Len(ctx context.Context) (int64, error) {
	return j.Db.LLen(ctx, pendingKey).Result()
}
