package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"

	"github.com/workmanhq/workman-bot/internal/api"
	"github.com/workmanhq/workman-bot/internal/bot"
	"github.com/workmanhq/workman-bot/internal/bot/keyboard"
	"github.com/workmanhq/workman-bot/internal/catalog"
	"github.com/workmanhq/workman-bot/internal/conversation"
	"github.com/workmanhq/workman-bot/internal/database"
	"github.com/workmanhq/workman-bot/internal/health"
	"github.com/workmanhq/workman-bot/internal/i18n"
	"github.com/workmanhq/workman-bot/internal/idempotency"
	"github.com/workmanhq/workman-bot/internal/imaging"
	"github.com/workmanhq/workman-bot/internal/lifecycle"
	"github.com/workmanhq/workman-bot/internal/ratelimit"
	"github.com/workmanhq/workman-bot/internal/repository"
	"github.com/workmanhq/workman-bot/pkg/config"
	"github.com/workmanhq/workman-bot/pkg/graceful"
	"github.com/workmanhq/workman-bot/pkg/logger"
	"github.com/workmanhq/workman-bot/pkg/metrics"
	pkgredis "github.com/workmanhq/workman-bot/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(*cfg)
	log.Info("starting workman bot",
		slog.String("env", cfg.AppEnv),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("http_port", cfg.Server.Port),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Error("failed to initialize sentry", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	config.Watch(v, log, func(updated *config.Config) {
		log.Info("configuration reloaded", slog.String("env", updated.AppEnv))
	})

	shutdown := lifecycle.NewShutdownManager(log, cfg.Server.ShutdownTimeout)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	migrationsDir := cfg.Database.MigrationsDir
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}
	if err := database.NewMigrator(db, log).ApplyDir(ctx, migrationsDir); err != nil {
		log.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("database migrations applied")

	redisClient, err := pkgredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })

	serviceRepo := repository.NewServiceRepository(db, log)
	orderRepo := repository.NewOrderRepository(db, log)
	matcher := catalog.NewMatcher(serviceRepo, log)

	sessionStorage := conversation.NewRedisStorage(redisClient.Client, cfg.Conversation.SessionTTL, log)

	texts := conversation.DefaultTexts()
	if translations, err := i18n.Load("en"); err != nil {
		log.Warn("message catalog not loaded, using built-in copy", slog.Any("error", err))
	} else {
		texts = i18n.Texts(translations.Translator("en"))
	}

	limiter := ratelimit.NewAdaptiveLimiter(
		ratelimit.NewRedisLimiter(redisClient.Client, log),
		ratelimit.NewMemoryLimiter(),
		log,
	)
	deduper := idempotency.NewRedisDeduper(redisClient.Client, log, 24*time.Hour)

	var engine *conversation.Engine

	tgBot, err := bot.New(*cfg, log, engineProxy{&engine}, limiter, deduper)
	if err != nil {
		log.Error("failed to initialize telegram bot", slog.Any("error", err))
		os.Exit(1)
	}

	messenger := bot.NewTelegramMessenger(tgBot.Telebot(), keyboard.NewBuilder(log), log)
	engine = conversation.NewEngine(
		sessionStorage,
		matcher,
		serviceRepo,
		orderRepo,
		messenger,
		texts,
		cfg.Catalog.Currency,
		log,
	)

	go tgBot.Start()
	shutdown.Register("telegram", func(context.Context) error {
		tgBot.Stop()
		return nil
	})

	cleaner := conversation.NewCleaner(sessionStorage, log, cfg.Conversation.SessionTTL, cfg.Conversation.CleanerInterval)
	go cleaner.Run(ctx)

	sessionCollector := metrics.NewSessionCollector(sessionStorage, 30*time.Second)
	go sessionCollector.Run(ctx)

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))
	checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))

	renderer := imaging.NewCardRenderer(cfg.Catalog.ImagesDir, cfg.Catalog.Currency)
	apiServer := api.NewServer(serviceRepo, renderer, checker, log)

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:    cfg.Server.Port,
		Handler: apiServer.Router(),
	}, cfg.Server.ShutdownTimeout)

	if err := httpServer.ListenAndServe(ctx); err != nil {
		log.Error("http server failed", slog.Any("error", err))
	}

	if err := shutdown.Shutdown(); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	log.Info("workman bot stopped")
}

// engineProxy defers engine resolution until after the bot is constructed;
// the messenger needs the telebot instance and the engine needs the
// messenger.
type engineProxy struct {
	engine **conversation.Engine
}

func (p engineProxy) HandleMessage(ctx context.Context, userID int64, in conversation.Inbound) error {
	if p.engine == nil || *p.engine == nil {
		return nil
	}
	return (*p.engine).HandleMessage(ctx, userID, in)
}
