// Package config loads the chat board settings from the environment.
//
// Unset or empty variables take their default. A variable that is set but
// malformed is an error: a typo in CHAT_LIMIT must not quietly fall back to
// the default quota. Load reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists browser origins allowed to call the API. Empty allows any.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port of the collector
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// DBConfig selects the storage backend.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH, SQLite file
	URL    string // DATABASE_URL, Postgres DSN
}

// ChatConfig bounds chat submissions.
type ChatConfig struct {
	Limit     int           // CHAT_LIMIT, messages per address per window
	Window    time.Duration // CHAT_WINDOW
	MaxLen    int           // CHAT_MAX_LEN, runes
	ListLimit int           // CHAT_LIST_LIMIT
}

// ModerationConfig configures the remote classifier and word list.
// An empty APIKey disables the classifier; the local filter always runs.
type ModerationConfig struct {
	APIKey       string        // MODERATION_API_KEY
	BaseURL      string        // MODERATION_BASE_URL, OpenAI-compatible endpoint
	Model        string        // MODERATION_MODEL
	Timeout      time.Duration // MODERATION_TIMEOUT
	CacheTTL     time.Duration // MODERATION_CACHE_TTL, 0 disables the verdict cache
	WordlistPath string        // WORDLIST_PATH, terms added to the built-in list
}

// RedisConfig points at the optional verdict cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// Config is the full process configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string   // debug|release|test
	TrustedProxies    []string // empty trusts none, so ClientIP is the socket peer

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	PublicDir    string        // HTML pages served and tracked
	TrackTimeout time.Duration // budget for one visit write

	DB         DBConfig
	Chat       ChatConfig
	Moderation ModerationConfig
	Redis      RedisConfig

	// Per-address request throttle in front of all routes.
	RateRPS   float64 // 0 disables
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	// IdempotencyTTL is how long a retried chat post is answered from the
	// stored result.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad is Load for main: it panics on any error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads, normalizes and validates the configuration.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.text("PORT", "8080"),
		ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.text("GIN_MODE", "release")),
		TrustedProxies:    e.list("TRUSTED_PROXIES"),

		LogLevel:       strings.ToLower(e.text("LOG_LEVEL", "info")),
		LogPretty:      e.flag("LOG_PRETTY", false),
		SwaggerEnabled: e.flag("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.text("API_BASE_PATH", "/api")),

		PublicDir:    e.text("PUBLIC_DIR", "public"),
		TrackTimeout: e.duration("TRACK_TIMEOUT", 2*time.Second),

		DB: DBConfig{
			Driver: normalizeDriver(e.text("DB_DRIVER", "sqlite")),
			Path:   e.text("DB_PATH", "chatboard.db"),
			URL:    e.text("DATABASE_URL", ""),
		},
		Chat: ChatConfig{
			Limit:     e.integer("CHAT_LIMIT", 3),
			Window:    e.duration("CHAT_WINDOW", 24*time.Hour),
			MaxLen:    e.integer("CHAT_MAX_LEN", 500),
			ListLimit: e.integer("CHAT_LIST_LIMIT", 100),
		},
		Moderation: ModerationConfig{
			APIKey:       e.text("MODERATION_API_KEY", ""),
			BaseURL:      e.text("MODERATION_BASE_URL", ""),
			Model:        e.text("MODERATION_MODEL", "llama-3.1-8b-instant"),
			Timeout:      e.duration("MODERATION_TIMEOUT", 5*time.Second),
			CacheTTL:     e.duration("MODERATION_CACHE_TTL", time.Hour),
			WordlistPath: e.text("WORDLIST_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     e.text("REDIS_ADDR", ""),
			Password: e.text("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
		},

		RateRPS:   e.number("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.text("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.text("OTEL_SERVICE_NAME", "go-chatboard"),
			SampleRatio: e.number("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate returns one error per violated constraint.
func (cfg Config) validate() []error {
	var errs []error
	check := func(okay bool, msg string) {
		if !okay {
			errs = append(errs, errors.New(msg))
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(cfg.TrackTimeout > 0, "TRACK_TIMEOUT must be > 0")

	switch cfg.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(cfg.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(cfg.DB.URL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q must be one of: sqlite, postgres", cfg.DB.Driver))
	}

	check(cfg.Chat.Limit >= 1, "CHAT_LIMIT must be >= 1")
	check(cfg.Chat.Window > 0, "CHAT_WINDOW must be > 0")
	check(cfg.Chat.MaxLen >= 1, "CHAT_MAX_LEN must be >= 1")
	check(cfg.Chat.ListLimit >= 1, "CHAT_LIST_LIMIT must be >= 1")

	check(cfg.Moderation.Timeout > 0, "MODERATION_TIMEOUT must be > 0")
	check(cfg.Moderation.CacheTTL >= 0, "MODERATION_CACHE_TTL must be >= 0")
	check(cfg.Redis.DB >= 0, "REDIS_DB must be >= 0")

	check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and remembers malformed ones.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) bad(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (e *env) text(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return i
}

func (e *env) number(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.bad(k, v, "number")
		return def
	}
	return f
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.bad(k, v, "duration")
		return def
	}
	return d
}

func (e *env) flag(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k, v, "boolean")
	return def
}

// list splits a comma separated list, dropping empty items.
func (e *env) list(k string) []string {
	v, _ := e.lookup(k)
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeDriver(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "postgresql", "pg":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	}
	return d
}

// normalizeBasePath forces a leading slash and drops trailing ones; empty
// means root.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
