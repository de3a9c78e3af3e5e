package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential store backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Auth transports used by the session service.
const (
	AuthTransportGraphQL = "graphql"
	AuthTransportREST    = "rest"
)

// Config aggregates runtime configuration for the client and the dev backend.
type Config struct {
	App        AppConfig
	Endpoints  EndpointsConfig
	Credential CredentialConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Transport  TransportConfig
	Breaker    BreakerConfig
	DevServer  DevServerConfig
}

// AppConfig identifies the running binary.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// EndpointsConfig lists the remote API locations.
type EndpointsConfig struct {
	GraphQLHTTPURL string
	GraphQLWSURL   string
	AuthBaseURL    string
}

// CredentialConfig selects where the bearer token is persisted.
type CredentialConfig struct {
	Backend  string
	Slot     string
	BoltPath string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// TransportConfig controls channel behavior.
type TransportConfig struct {
	RequestTimeoutSeconds     int
	TokenHeader               string
	AuthTransport             string
	RetryAfterRefresh         bool
	StreamReconnectOnRotation bool
	MetricsNamespace          string
}

// BreakerConfig configures the request/response channel circuit breaker.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	IntervalSeconds  int
	TimeoutSeconds   int
	MinRequests      uint32
	FailureThreshold float64
}

// DevServerConfig configures the in-memory development backend.
type DevServerConfig struct {
	Host                   string
	Port                   string
	JWTSecret              string
	AccessTokenTTLSeconds  int
	RefreshTokenTTLMinutes int
	RotateWithinSeconds    int
	BcryptCost             int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "collab-client"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Endpoints: EndpointsConfig{
			GraphQLHTTPURL: getEnv("COLLAB_GRAPHQL_HTTP_URL", "http://localhost:4000/graphql"),
			GraphQLWSURL:   getEnv("COLLAB_GRAPHQL_WS_URL", "ws://localhost:4000/graphql"),
			AuthBaseURL:    strings.TrimRight(getEnv("COLLAB_AUTH_BASE_URL", "http://localhost:4000/auth"), "/"),
		},
		Credential: CredentialConfig{
			Backend:  strings.ToLower(getEnv("COLLAB_CREDENTIAL_BACKEND", BackendBolt)),
			Slot:     getEnv("COLLAB_CREDENTIAL_SLOT", "authToken"),
			BoltPath: getEnv("COLLAB_BOLT_PATH", "./data/credentials.db"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Transport: TransportConfig{
			RequestTimeoutSeconds:     getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			TokenHeader:               getEnv("COLLAB_TOKEN_HEADER", "x-access-token"),
			AuthTransport:             strings.ToLower(getEnv("COLLAB_AUTH_TRANSPORT", AuthTransportGraphQL)),
			RetryAfterRefresh:         getEnvAsBool("COLLAB_RETRY_AFTER_REFRESH", false),
			StreamReconnectOnRotation: getEnvAsBool("COLLAB_STREAM_RECONNECT_ON_ROTATION", true),
			MetricsNamespace:          getEnv("COLLAB_METRICS_NAMESPACE", "collab_client"),
		},
		Breaker: BreakerConfig{
			Enabled:          getEnvAsBool("BREAKER_ENABLED", true),
			MaxRequests:      uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 5)),
			IntervalSeconds:  getEnvAsInt("BREAKER_INTERVAL_SECONDS", 30),
			TimeoutSeconds:   getEnvAsInt("BREAKER_TIMEOUT_SECONDS", 60),
			MinRequests:      uint32(getEnvAsInt("BREAKER_MIN_REQUESTS", 5)),
			FailureThreshold: getEnvAsFloat("BREAKER_FAILURE_THRESHOLD", 0.8),
		},
		DevServer: DevServerConfig{
			Host:                   getEnv("DEVSERVER_HOST", "127.0.0.1"),
			Port:                   getEnv("DEVSERVER_PORT", "4000"),
			JWTSecret:              getEnv("DEVSERVER_JWT_SECRET", "dev-secret"),
			AccessTokenTTLSeconds:  getEnvAsInt("DEVSERVER_ACCESS_TOKEN_TTL_SECONDS", 900),
			RefreshTokenTTLMinutes: getEnvAsInt("DEVSERVER_REFRESH_TOKEN_TTL_MINUTES", 7*24*60),
			RotateWithinSeconds:    getEnvAsInt("DEVSERVER_ROTATE_WITHIN_SECONDS", 120),
			BcryptCost:             getEnvAsInt("DEVSERVER_BCRYPT_COST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch c.Credential.Backend {
	case BackendMemory, BackendBolt, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid COLLAB_CREDENTIAL_BACKEND %q", c.Credential.Backend)
	}
	if c.Credential.Backend == BackendPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN required for postgres credential backend")
	}
	if c.Credential.Slot == "" {
		return fmt.Errorf("COLLAB_CREDENTIAL_SLOT must not be empty")
	}
	switch c.Transport.AuthTransport {
	case AuthTransportGraphQL, AuthTransportREST:
	default:
		return fmt.Errorf("invalid COLLAB_AUTH_TRANSPORT %q", c.Transport.AuthTransport)
	}
	return nil
}

// RequestTimeout returns the HTTP client timeout; zero means none.
func (t TransportConfig) RequestTimeout() time.Duration {
	if t.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(t.RequestTimeoutSeconds) * time.Second
}

// RefreshURL is the cookie-authenticated token refresh endpoint.
func (e EndpointsConfig) RefreshURL() string {
	return e.AuthBaseURL + "/refresh"
}

// Addr returns the dev backend bind address.
func (d DevServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", d.Host, d.Port)
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (d DevServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(d.AccessTokenTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
