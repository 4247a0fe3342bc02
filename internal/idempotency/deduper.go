// Package idempotency drops duplicate Telegram update deliveries so every
// inbound message is processed at most once.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records processed update keys and reports duplicates.
type Deduper interface {
	// FirstDelivery marks the key processed and returns true exactly once
	// per key within the retention window.
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// Key builds a deterministic dedupe key from all provided parts.
func Key(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisDeduper implements Deduper with SETNX keys in Redis, so duplicate
// suppression survives bot restarts.
type RedisDeduper struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

var _ Deduper = (*RedisDeduper)(nil)

// NewRedisDeduper creates a Redis-backed Deduper retaining keys for ttl.
func NewRedisDeduper(client *redis.Client, log *slog.Logger, ttl time.Duration) *RedisDeduper {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, log: log, ttl: ttl}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string) (bool, error) {
	first, err := d.client.SetNX(ctx, "idempotency:update:"+key, 1, d.ttl).Result()
	if err != nil {
		d.log.Error("idempotency check failed", slog.String("key", key), slog.Any("error", err))
		return false, err
	}
	return first, nil
}
