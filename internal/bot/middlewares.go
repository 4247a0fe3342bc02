package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/workmanhq/workman-bot/internal/errors"
	"github.com/workmanhq/workman-bot/internal/idempotency"
	"github.com/workmanhq/workman-bot/internal/ratelimit"
	"github.com/workmanhq/workman-bot/pkg/metrics"
)

// RecoveryMiddleware catches panics, reports them, and notifies the user.
// This is the one place outside the engine that may send a message, since a
// panic means the engine never got to reply.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)

					userMsg := "Oops, something went wrong. Please try again later."
					if errHandler != nil {
						appErr := apperrors.NewDeliveryError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorReportingMiddleware reports handler failures through the centralized
// handler. It never messages the user: the engine already sent the
// user-facing reply for any error it returns.
func ErrorReportingMiddleware(errHandler *apperrors.Handler) Middleware {
	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr != nil {
				metrics.RecordError(appErr.Code, string(appErr.Severity))
			} else {
				metrics.RecordError("unknown", string(apperrors.SeverityHigh))
			}

			if errHandler != nil {
				_, _ = errHandler.Handle(context.Background(), err)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates under a
// fresh correlation id.
func LoggingMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()

			userID := int64(0)
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}

			kind := updateKind(c)
			correlationID := uuid.NewString()

			log.Info("handling update",
				slog.Int64("user_id", userID),
				slog.String("kind", kind),
				slog.String("correlation_id", correlationID),
			)

			err := next(c)

			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("kind", kind),
				slog.String("correlation_id", correlationID),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// MetricsMiddleware records message counters and handling duration.
func MetricsMiddleware(next Handler) Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordMessage(updateKind(c), status, time.Since(start))
		return err
	}
}

// RateLimitMiddleware throttles inbound messages per user before they reach
// the conversation engine.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	limit   int
	window  time.Duration
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, limit int, window time.Duration, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		log:     log,
	}
}

// Handle rejects updates from users that exceed the configured limit.
func (m *RateLimitMiddleware) Handle(next Handler) Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		if m.limiter == nil || m.limit <= 0 || c == nil || c.Sender() == nil {
			return next(c)
		}

		userID := c.Sender().ID
		result, err := m.limiter.Check(context.Background(), ratelimit.UserKey(userID), m.limit, m.window)
		if err != nil && result == nil {
			// Limiter backend failure, let the message through.
			m.log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
			return next(c)
		}

		if result != nil && !result.Allowed {
			m.log.Warn("rate limit exceeded", slog.Int64("user_id", userID))
			return c.Send("You're sending messages too fast. Please slow down and try again.")
		}

		return next(c)
	}
}

// IdempotencyMiddleware drops Telegram update redeliveries so each message
// is handled at most once.
func IdempotencyMiddleware(deduper idempotency.Deduper, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next Handler) Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if deduper == nil {
				return next(c)
			}

			key := updateKey(c)
			if key == "" {
				return next(c)
			}

			first, err := deduper.FirstDelivery(context.Background(), key)
			if err != nil {
				// Dedupe backend failure, process rather than drop.
				return next(c)
			}

			if !first {
				log.Info("dropping duplicate update", slog.String("key", key))
				return nil
			}

			return next(c)
		}
	}
}

func updateKind(c telebot.Context) string {
	if c == nil || c.Message() == nil {
		return "unknown"
	}
	if c.Message().Location != nil {
		return "location"
	}
	return "text"
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	msg := c.Message()
	if msg == nil || msg.ID == 0 {
		return ""
	}

	chatID := int64(0)
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}

	return idempotency.Key(chatID, msg.ID)
}
