package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgstrings "hashplanet/pkg/platform/strings"
)

// Ledger backends selectable through LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Registry  Registry
	Ledger    Ledger
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      Auth
	Credit    Credit
	RateLimit RateLimit
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// TrustedProxies lists CIDRs or addresses whose forwarded headers are
	// believed. Empty means the socket peer is the client.
	TrustedProxies []string
}

// Registry holds the identity of the token registry.
type Registry struct {
	Name     string
	Symbol   string
	Policy   string
	Sentinel string
}

// Ledger selects where ownership state lives.
type Ledger struct {
	Backend     string
	DatabaseURL string
}

// RedisConfig configures the go-redis client used by the redis backend.
type RedisConfig struct {
	URL          string
	Prefix       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka audit sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string
	AuditTopic  string
	AuditBuffer int
}

// Auth configures bearer token validation for mutating routes.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// AdminToken enables operator routes when non-empty.
	AdminToken string
}

// Credit configures the companion credit ledger. ClaimReward is a decimal
// amount in whole credits; empty disables rewards.
type Credit struct {
	Name        string
	Symbol      string
	Minter      string
	ClaimReward string
}

// RateLimit bounds requests per client IP on reads and per principal on
// writes. A zero limit leaves that class unlimited.
type RateLimit struct {
	Enabled bool
	Read    int
	Write   int
	Window  time.Duration
}

// Log selects slog level and output format.
type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getEnv("HASHPLANET_ADDR", ":8080"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  pkgstrings.SplitList(os.Getenv("TRUSTED_PROXIES"), ","),
		},
		Registry: Registry{
			Name:     getEnv("REGISTRY_NAME", "Geohash"),
			Symbol:   getEnv("REGISTRY_SYMBOL", "GEO"),
			Policy:   getEnv("REGISTRY_POLICY", "genesis-only"),
			Sentinel: getEnv("REGISTRY_SENTINEL", "registry"),
		},
		Ledger: Ledger{
			Backend:     strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Prefix:       getEnv("REDIS_PREFIX", "hashplanet"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			AuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "hashplanet.registry.audit"),
			AuditBuffer: getInt("AUDIT_BUFFER", 1024),
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     getEnv("JWT_ISSUER", "hashplanet"),
			JWTAudience:   getEnv("JWT_AUDIENCE", "hashplanet-registry"),
			AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
		},
		Credit: Credit{
			Name:        getEnv("CREDIT_NAME", "Wakanda Credit"),
			Symbol:      getEnv("CREDIT_SYMBOL", "WKC"),
			Minter:      getEnv("CREDIT_MINTER", "registry"),
			ClaimReward: os.Getenv("CLAIM_REWARD"),
		},
		RateLimit: RateLimit{
			Enabled: getBool("RATE_LIMIT_ENABLED", true),
			Read:    getInt("RATE_LIMIT_READ", 100),
			Write:   getInt("RATE_LIMIT_WRITE", 30),
			Window:  getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate rejects combinations that cannot start a server.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("HASHPLANET_ADDR must not be empty")
	}
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s backend", BackendRedis)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must not be empty")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC must not be empty when KAFKA_BROKERS is set")
	}
	if c.Kafka.AuditBuffer < 0 {
		return fmt.Errorf("AUDIT_BUFFER must not be negative")
	}
	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
