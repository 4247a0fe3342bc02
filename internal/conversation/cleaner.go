package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Cleaner removes sessions whose users went silent for longer than the TTL.
// Redis expiry is the backstop; the sweeper keeps the session census accurate
// between expirations.
type Cleaner struct {
	storage  Storage
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(storage Storage, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Cleaner{
		storage:  storage,
		log:      log,
		ttl:      ttl,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.storage == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("session cleaner stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	sessions, err := c.storage.GetAllSessions(ctx)
	if err != nil {
		c.log.Error("session cleaner failed to list sessions", slog.Any("error", err))
		return
	}

	for _, session := range sessions {
		if session == nil {
			continue
		}

		if time.Since(session.UpdatedAt) <= c.ttl {
			continue
		}

		if err := c.storage.ClearSession(ctx, session.UserID); err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				c.log.Error("session cleaner failed to clear session",
					slog.Int64("user_id", session.UserID),
					slog.Any("error", err),
				)
			}
			continue
		}

		c.log.Info("stale session cleared", slog.Int64("user_id", session.UserID))
	}
}
