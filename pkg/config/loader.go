// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the per-environment YAML file and environment
// variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// missing env files are fine in development
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks the config against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}

// Watch re-reads the config file on change and invokes onReload with the fresh
// Config. Reloads that fail validation are logged and discarded.
func Watch(v *viper.Viper, log *slog.Logger, onReload func(*Config)) {
	if v == nil || onReload == nil {
		return
	}

	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", slog.String("file", e.Name))

		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Error("config reload: unmarshal failed", slog.Any("error", err))
			return
		}

		if err := Validate(&cfg); err != nil {
			log.Error("config reload: validation failed", slog.Any("error", err))
			return
		}

		onReload(&cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", "10s")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("conversation.session_ttl", "1h")
	v.SetDefault("conversation.cleaner_interval", "10m")
	v.SetDefault("catalog.images_dir", "images/service_images")
	v.SetDefault("catalog.currency", "Ugx")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.messages_per_minute", 30)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
}
