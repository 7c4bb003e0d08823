// Package config parses the server's CLI invocation and layers ambient,
// env-driven settings (logging, Sentry, the admin HTTP surface) on top,
// generalized from the teacher's internal/config package: the same
// getEnv*/validate shape, but the server's four positional arguments
// (ip, port, max_rooms, max_clients — spec.md §6's CLI contract) take the
// place of the teacher's all-env HTTP server config, since this server's
// external contract is a CLI invocation, not a process manager's env block.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved configuration for one server process.
type Config struct {
	// Positional CLI arguments, spec.md §6: `server <ip> <port> <max_rooms>
	// <max_clients>`.
	IP         string
	Port       int
	MaxRooms   int
	MaxClients int

	// Ambient logging configuration, env-driven per the teacher's
	// LoggingConfig.
	LogLevel     string
	LogFormat    string
	LogAddSource bool
	Service      string
	Environment  string

	// Ambient Sentry configuration, env-driven per the teacher's
	// SentryConfig.
	SentryDSN              string
	SentryTracesSampleRate float64
	SentryRelease          string
	SentryFlushTimeout     time.Duration

	// AdminAddr is the loopback HTTP surface's listen address (health,
	// readiness, and Prometheus metrics) — ambient, not part of spec.md's
	// external contract, disabled entirely when empty.
	AdminAddr string

	// MetricsNamespace prefixes every Prometheus metric name the admin
	// surface registers (e.g. "pexeso" -> "pexeso_connected_clients").
	MetricsNamespace string

	// RandomSeed seeds the whole server's card-shuffle RNG stream
	// (internal/game.RNGSource); spec.md §4.4 calls for this to be
	// injectable so tests are reproducible. Zero means "derive one from
	// the wall clock" — the production default.
	RandomSeed int64
}

// LoadDotEnv optionally loads a .env file into the process environment
// before ParseArgs/applyEnvOverrides read it, mirroring the "optional local
// env override" pattern joho/godotenv is used for across the example pack.
// A missing .env file is not an error; this is a development convenience,
// never a requirement.
func LoadDotEnv(path string) {
	_ = godotenv.Load(path)
}

// ParseArgs builds a Config from the server's CLI arguments (excluding the
// program name) plus the ambient environment, and validates the result.
// spec.md §6: exit 1 on invalid args.
func ParseArgs(args []string) (*Config, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("usage: server <ip> <port> <max_rooms> <max_clients>")
	}

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("port must be an integer: %w", err)
	}
	maxRooms, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, fmt.Errorf("max_rooms must be an integer: %w", err)
	}
	maxClients, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, fmt.Errorf("max_clients must be an integer: %w", err)
	}

	cfg := &Config{
		IP:         args[0],
		Port:       port,
		MaxRooms:   maxRooms,
		MaxClients: maxClients,
	}
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers the ambient, non-CLI settings on top of cfg.
func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvString("LOG_FORMAT", "text")
	cfg.LogAddSource = getEnvBool("LOG_ADD_SOURCE", false)
	cfg.Service = getEnvString("SERVICE_NAME", "pexeso-server")
	cfg.Environment = getEnvString("ENVIRONMENT", "development")

	cfg.SentryDSN = getEnvString("SENTRY_DSN", "")
	cfg.SentryTracesSampleRate = getEnvFloat64("SENTRY_TRACES_SAMPLE_RATE", 0.0)
	cfg.SentryRelease = getEnvString("SENTRY_RELEASE", "dev")
	cfg.SentryFlushTimeout = getEnvDuration("SENTRY_FLUSH_TIMEOUT", 2*time.Second)

	cfg.AdminAddr = getEnvString("ADMIN_ADDR", "127.0.0.1:9090")
	cfg.MetricsNamespace = getEnvString("METRICS_NAMESPACE", "pexeso")
	cfg.RandomSeed = getEnvInt64("RANDOM_SEED", 0)
}
