// Package config provides centralized configuration management for the
// engine's optional surfaces (persistence, control server) and run-level
// defaults. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration. The core upload/dump engine itself takes its knobs as
// explicit UploadOptions/DumpOptions; this package configures the things
// around it — a CLI invocation, a long-running control server, persisted
// run history.
package config

import "time"

// Config holds all application configuration. All settings can be
// configured via environment variables.
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Control  ControlServerConfig
	Logging  LoggingConfig
	Audit    AuditConfig
}

// EngineConfig holds default run-level knobs for the upload/dump fixpoint
// drivers, used when a CLI invocation doesn't override them explicitly.
type EngineConfig struct {
	// DefaultNamespace enables namespace-tolerant lookup (see nsutil.go).
	DefaultNamespace string `env:"ENGINE_DEFAULT_NAMESPACE"`

	// MaxBatchSize caps records per Create call per object per pass
	// (default: 200, the managed-package bulk API ceiling).
	MaxBatchSize int `env:"ENGINE_MAX_BATCH_SIZE" default:"200"`

	// MaxConcurrentObjects bounds concurrent per-object Create calls
	// within one upload pass (default: 4).
	MaxConcurrentObjects int `env:"ENGINE_MAX_CONCURRENT_OBJECTS" default:"4"`

	// MaxFetchSize bounds records buffered per dump query stream
	// (default: 10000).
	MaxFetchSize int `env:"ENGINE_MAX_FETCH_SIZE" default:"10000"`

	// MaxConcurrentQueries bounds concurrent seed queries in a dump
	// (default: 4).
	MaxConcurrentQueries int `env:"ENGINE_MAX_CONCURRENT_QUERIES" default:"4"`

	// CallTimeout is loaded and validated (default: 2m); cmd/migrate does
	// not apply it to describe/query/create calls, which run under the
	// caller's context only.
	CallTimeout time.Duration `env:"ENGINE_CALL_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds the Postgres connection settings backing the
// optional idmapstore and audit packages; neither the upload nor the dump
// driver itself touches a database — IdMap is in-memory per the core
// contract.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Supports both DATABASE_URL
	// and DB_URL env vars for compatibility. Empty disables persistence:
	// idmapstore/audit calls become no-ops.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ControlServerConfig holds settings for the optional statusserver: a
// healthz + SSE progress surface a long-running migration can expose,
// never the CLI/driver itself.
type ControlServerConfig struct {
	// Enabled turns the control server on (default: false).
	Enabled bool `env:"CONTROL_SERVER_ENABLED" default:"false"`

	Host string `env:"CONTROL_SERVER_HOST" default:"127.0.0.1"`
	Port int    `env:"CONTROL_SERVER_PORT" default:"8089"`

	ReadTimeout     time.Duration `env:"CONTROL_SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"CONTROL_SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"CONTROL_SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"CONTROL_SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TokenHash is a bcrypt hash of the bearer token required to reach the
	// /runs endpoints; /healthz is unauthenticated. Empty disables auth entirely
	// (acceptable only because the server defaults to loopback-only).
	TokenHash string `env:"CONTROL_SERVER_TOKEN_HASH"`
}

// Addr returns the control server's listen address in host:port format.
func (c ControlServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuditConfig holds run-history retention settings for the optional audit
// package.
type AuditConfig struct {
	// Enabled turns run-history persistence on (default: false; requires
	// Database.URL).
	Enabled bool `env:"AUDIT_ENABLED" default:"false"`

	// RetentionDays is how long a run's audit entry is kept before it's
	// eligible for purge (default: 180).
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"180"`
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
