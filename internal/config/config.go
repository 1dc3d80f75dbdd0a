package config

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Cache    CacheConfig    `koanf:"cache"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `koanf:"host"`
	Port      int             `koanf:"port"`
	Mode      string          `koanf:"mode"`
	Timeout   string          `koanf:"timeout"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`

	// TrustRequestID reuses a well-formed X-Request-ID sent by the caller.
	TrustRequestID bool `koanf:"trust_request_id"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled    bool    `koanf:"enabled"`
	RPS        float64 `koanf:"rps"`
	Burst      int     `koanf:"burst"`
	MaxClients int     `koanf:"max_clients"`
	IdleTTL    string  `koanf:"idle_ttl"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver      string         `koanf:"driver"`
	AutoMigrate bool           `koanf:"auto_migrate"`
	SQLite      SQLiteConfig   `koanf:"sqlite"`
	Postgres    PostgresConfig `koanf:"postgres"`
	Pool        PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// CacheConfig holds query cache settings. Backend "memory" keeps entries in
// process; "redis" shares them between server instances.
type CacheConfig struct {
	Backend            string         `koanf:"backend"`
	Capacity           int            `koanf:"capacity"`
	Shards             int            `koanf:"shards"`
	EvictionPercentage int            `koanf:"eviction_percentage"`
	TTL                CacheTTLConfig `koanf:"ttl"`
}

// CacheTTLConfig holds one lifetime per kind of cached value.
type CacheTTLConfig struct {
	Page          string `koanf:"page"`
	Count         string `koanf:"count"`
	Search        string `koanf:"search"`
	FilterOptions string `koanf:"filter_options"`
	Advocate      string `koanf:"advocate"`
}

// CacheTTLs is the parsed form of CacheTTLConfig.
type CacheTTLs struct {
	Page          time.Duration
	Count         time.Duration
	Search        time.Duration
	FilterOptions time.Duration
	Advocate      time.Duration
}

// Max returns the longest configured lifetime.
func (t CacheTTLs) Max() time.Duration {
	m := t.Page
	for _, d := range []time.Duration{t.Count, t.Search, t.FilterOptions, t.Advocate} {
		if d > m {
			m = d
		}
	}
	return m
}

// RedisConfig holds Redis connection settings, used when cache.backend is redis.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	Enabled     bool   `koanf:"enabled"`
	JWTSecret   string `koanf:"jwt_secret"`
	Issuer      string `koanf:"issuer"`
	TokenExpiry string `koanf:"token_expiry"`
}

// Default cache lifetimes, applied when a ttl is left unset.
const (
	DefaultPageTTL          = 5 * time.Minute
	DefaultCountTTL         = 10 * time.Minute
	DefaultSearchTTL        = 2 * time.Minute
	DefaultFilterOptionsTTL = time.Hour
	DefaultAdvocateTTL      = 10 * time.Minute
)

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__CACHE__TTL__FILTER_OPTIONS=30m overrides cache.ttl.filter_options.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__CACHE__BACKEND -> cache.backend
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	// Whitespace-only durations mean unset.
	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	c.Server.RateLimit.IdleTTL = strings.TrimSpace(c.Server.RateLimit.IdleTTL)

	if err := optionalPositiveDuration("server.timeout", c.Server.Timeout); err != nil {
		return err
	}
	if ma := c.Server.CORS.MaxAge; ma != "" {
		d, err := time.ParseDuration(ma)
		if err != nil {
			return fmt.Errorf("invalid server.cors.max_age %q: must be a valid duration (e.g. \"24h\", \"3600s\"): %w", ma, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid server.cors.max_age %q: must be greater than 0", ma)
		}
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %v: must be positive when rate limiting is enabled", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", c.Server.RateLimit.Burst)
		}
		if c.Server.RateLimit.MaxClients < 0 {
			return fmt.Errorf("invalid server.rate_limit.max_clients %d: must not be negative", c.Server.RateLimit.MaxClients)
		}
		if err := optionalPositiveDuration("server.rate_limit.idle_ttl", c.Server.RateLimit.IdleTTL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		host := strings.TrimSpace(c.Database.Postgres.Host)
		if host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if c.Database.Postgres.Port < 1 || c.Database.Postgres.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", c.Database.Postgres.Port)
		}
		user := strings.TrimSpace(c.Database.Postgres.User)
		if user == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		dbName := strings.TrimSpace(c.Database.Postgres.DBName)
		if dbName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		sslMode := strings.TrimSpace(c.Database.Postgres.SSLMode)
		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", c.Database.Postgres.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", c.Database.Postgres.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}

		c.Database.Postgres.Host = host
		c.Database.Postgres.User = user
		c.Database.Postgres.DBName = dbName
		c.Database.Postgres.SSLMode = sslMode
	}

	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)
	return optionalPositiveDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime)
}

func (c *Config) validateCache() error {
	backend := strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if backend == "" {
		backend = "memory"
	}
	switch backend {
	case "memory":
		if c.Cache.Capacity < 0 {
			return fmt.Errorf("invalid cache.capacity %d: must not be negative", c.Cache.Capacity)
		}
		if c.Cache.Shards < 0 {
			return fmt.Errorf("invalid cache.shards %d: must not be negative", c.Cache.Shards)
		}
		if p := c.Cache.EvictionPercentage; p < 0 || p > 100 {
			return fmt.Errorf("invalid cache.eviction_percentage %d: must be between 0 and 100", p)
		}
	case "redis":
		addr := strings.TrimSpace(c.Redis.Addr)
		if addr == "" {
			return fmt.Errorf("redis.addr is required when cache.backend is redis")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("invalid redis.db %d: must not be negative", c.Redis.DB)
		}
		c.Redis.Addr = addr
	default:
		return fmt.Errorf("invalid cache.backend %q: must be one of %q, %q", c.Cache.Backend, "memory", "redis")
	}
	c.Cache.Backend = backend

	ttlFields := []struct {
		name  string
		value *string
	}{
		{"cache.ttl.page", &c.Cache.TTL.Page},
		{"cache.ttl.count", &c.Cache.TTL.Count},
		{"cache.ttl.search", &c.Cache.TTL.Search},
		{"cache.ttl.filter_options", &c.Cache.TTL.FilterOptions},
		{"cache.ttl.advocate", &c.Cache.TTL.Advocate},
	}
	for _, f := range ttlFields {
		*f.value = strings.TrimSpace(*f.value)
		if err := optionalPositiveDuration(f.name, *f.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	if !c.Auth.Enabled {
		return nil
	}

	jwtSecret := strings.TrimSpace(c.Auth.JWTSecret)
	if jwtSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if len(jwtSecret) < 32 {
		return fmt.Errorf("invalid auth.jwt_secret: must be at least 32 characters")
	}
	if c.Server.Mode == gin.ReleaseMode && CountSecretClasses(jwtSecret) < 3 {
		return fmt.Errorf("auth.jwt_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	c.Auth.JWTSecret = jwtSecret

	c.Auth.Issuer = strings.TrimSpace(c.Auth.Issuer)
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "advocatedir"
	}

	c.Auth.TokenExpiry = strings.TrimSpace(c.Auth.TokenExpiry)
	return optionalPositiveDuration("auth.token_expiry", c.Auth.TokenExpiry)
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// TTLs returns the parsed cache lifetimes with defaults filled in.
// It assumes Validate has already accepted the values.
func (c CacheConfig) TTLs() CacheTTLs {
	return CacheTTLs{
		Page:          durationOr(c.TTL.Page, DefaultPageTTL),
		Count:         durationOr(c.TTL.Count, DefaultCountTTL),
		Search:        durationOr(c.TTL.Search, DefaultSearchTTL),
		FilterOptions: durationOr(c.TTL.FilterOptions, DefaultFilterOptionsTTL),
		Advocate:      durationOr(c.TTL.Advocate, DefaultAdvocateTTL),
	}
}

// TokenTTL returns the lifetime of minted admin tokens, defaulting to 1h.
func (a AuthConfig) TokenTTL() time.Duration {
	return durationOr(a.TokenExpiry, time.Hour)
}

// IdleTTLDuration returns how long an idle client's limiter is kept, defaulting to 10m.
func (r RateLimitConfig) IdleTTLDuration() time.Duration {
	return durationOr(r.IdleTTL, 10*time.Minute)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// optionalPositiveDuration accepts "" or a valid duration greater than 0.
func optionalPositiveDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return nil
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if has {
			classes++
		}
	}
	return classes
}
