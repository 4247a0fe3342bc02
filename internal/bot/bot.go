// Package bot wires the Telegram transport to the conversation engine.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/workmanhq/workman-bot/internal/bot/keyboard"
	"github.com/workmanhq/workman-bot/internal/conversation"
	"github.com/workmanhq/workman-bot/internal/domain"
	apperrors "github.com/workmanhq/workman-bot/internal/errors"
	"github.com/workmanhq/workman-bot/internal/idempotency"
	"github.com/workmanhq/workman-bot/internal/ratelimit"
	"github.com/workmanhq/workman-bot/pkg/config"
)

// Engine is the piece of the conversation package the transport needs.
type Engine interface {
	HandleMessage(ctx context.Context, userID int64, in conversation.Inbound) error
}

// Bot wraps telebot.Bot with the routing and middleware chain.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	router     *Router
	keyboard   *keyboard.Builder
	errHandler *apperrors.Handler
}

// New builds a telegram bot instance configured per the application settings.
// The engine handles /start and /cancel itself, so every update funnels into
// the same engine-backed handler.
func New(
	cfg config.Config,
	log *slog.Logger,
	engine Engine,
	limiter ratelimit.Limiter,
	deduper idempotency.Deduper,
) (*Bot, error) {
	settings := telebot.Settings{
		Token: cfg.Bot.Token,
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.Server.Port,
			Endpoint: &telebot.WebhookEndpoint{
				PublicURL: cfg.Bot.WebhookURL,
			},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	kb := keyboard.NewBuilder(log)
	router := NewRouter(log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	b := &Bot{
		telebot:    tb,
		log:        log,
		router:     router,
		keyboard:   kb,
		errHandler: errHandler,
	}

	b.setupRouter(cfg, engine, limiter, deduper)
	b.registerTelebotHandlers()

	return b, nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying bot for the messenger and health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) setupRouter(cfg config.Config, engine Engine, limiter ratelimit.Limiter, deduper idempotency.Deduper) {
	b.router.Use(RecoveryMiddleware(b.log, b.errHandler))
	b.router.Use(IdempotencyMiddleware(deduper, b.log))

	if cfg.RateLimit.Enabled {
		rl := NewRateLimitMiddleware(limiter, cfg.RateLimit.MessagesPerMinute, 0, b.log)
		b.router.Use(rl.Handle)
	}

	b.router.Use(ErrorReportingMiddleware(b.errHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(MetricsMiddleware)

	engineHandler := newEngineHandler(engine, b.log)
	b.router.RegisterCommand(conversation.CommandStart, engineHandler)
	b.router.RegisterCommand(conversation.CommandCancel, engineHandler)
	b.router.RegisterCommand(CommandHelp, newHelpHandler())
	b.router.SetDefault(engineHandler)
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil {
		return
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnLocation, b.router.Route)
}

func newEngineHandler(engine Engine, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			if log != nil {
				log.Warn("update without sender")
			}
			return nil
		}

		in := conversation.Inbound{Text: c.Text()}
		if msg := c.Message(); msg != nil && msg.Location != nil {
			in.Coordinates = &domain.Coordinates{
				Latitude:  float64(msg.Location.Lat),
				Longitude: float64(msg.Location.Lng),
			}
		}

		return engine.HandleMessage(context.Background(), c.Sender().ID, in)
	}
}
