// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/danielhkuo/quickly-rank/schulze"
)

// Supported DATABASE_TYPE values.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

const (
	defaultPort              = 3318
	defaultBaseURL           = "http://localhost:3318"
	defaultAutoCloseSchedule = "@every 1m"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	AdminKeySalt string
	PollSlugSalt string
	BaseURL      string
	LogLevel     string

	// Optional integrations; empty disables them.
	RedisURL     string
	OTLPEndpoint string

	// Proportional (STV) counting limits; zero keeps the engine default.
	STVMaxSubsets int
	STVMaxWinners int
	STVTimeout    time.Duration
	STVWorkers    int

	// AutoCloseSchedule is a cron spec; "off" disables scheduled closing.
	AutoCloseSchedule string
}

// Budget returns the STV limits as an engine budget.
func (c Config) Budget() schulze.Budget {
	return schulze.Budget{
		MaxSubsets: c.STVMaxSubsets,
		MaxWinners: c.STVMaxWinners,
		Timeout:    c.STVTimeout,
		Workers:    c.STVWorkers,
	}
}

// SlogLevel parses LogLevel, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile string

	fs := flag.NewFlagSet("quickly-rank", flag.ContinueOnError)

	fs.StringVar(&envFile, "env", "", "Path to a .env file (default: ./.env if present)")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Public base URL used in share links")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AdminKeySalt, "admin-salt", "", "Admin key salt (prefer env)")
	fs.StringVar(&cfg.PollSlugSalt, "slug-salt", "", "Poll slug salt (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		port, err := envInt("PORT", defaultPort)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = port
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = envString("DATABASE_TYPE", DatabaseSQLite)
	}
	cfg.DatabaseType = strings.ToLower(cfg.DatabaseType)
	if cfg.DatabaseType != DatabaseSQLite && cfg.DatabaseType != DatabasePostgres {
		return Config{}, fmt.Errorf("unsupported database type %q (want sqlite or postgres)", cfg.DatabaseType)
	}

	// Secrets - MUST be provided
	if cfg.AdminKeySalt == "" {
		cfg.AdminKeySalt = os.Getenv("ADMIN_KEY_SALT")
	}
	if cfg.AdminKeySalt == "" {
		return Config{}, errors.New("ADMIN_KEY_SALT required")
	}

	if cfg.PollSlugSalt == "" {
		cfg.PollSlugSalt = os.Getenv("POLL_SLUG_SALT")
	}
	if cfg.PollSlugSalt == "" {
		return Config{}, errors.New("POLL_SLUG_SALT required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = envString("BASE_URL", defaultBaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LogLevel == "" {
		cfg.LogLevel = envString("LOG_LEVEL", "info")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.AutoCloseSchedule = envString("AUTO_CLOSE_SCHEDULE", defaultAutoCloseSchedule)

	var err error
	if cfg.STVMaxSubsets, err = envInt("STV_MAX_SUBSETS", schulze.DefaultMaxSubsets); err != nil {
		return Config{}, err
	}
	if cfg.STVMaxSubsets > schulze.HardMaxSubsets {
		return Config{}, fmt.Errorf("STV_MAX_SUBSETS %d exceeds the limit of %d", cfg.STVMaxSubsets, schulze.HardMaxSubsets)
	}
	if cfg.STVMaxWinners, err = envInt("STV_MAX_WINNERS", schulze.DefaultMaxWinners); err != nil {
		return Config{}, err
	}
	if cfg.STVWorkers, err = envInt("STV_WORKERS", 0); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("STV_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STV_TIMEOUT env variable: %w", err)
		}
		cfg.STVTimeout = d
	}

	return cfg, nil
}

// loadEnvFile loads path, or ./.env when path is empty and the file exists.
// Variables already in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", name)
	}
	return n, nil
}
