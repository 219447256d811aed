package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Seed      SeedConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

type LogConfig struct {
	Level  string
	Format string
}

// MongoDBConfig is optional: an empty URI selects the in-memory engine.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	Retries  int
}

// Enabled reports whether a MongoDB backend is configured.
func (m MongoDBConfig) Enabled() bool { return m.URI != "" }

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, r.Port) }

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecure accepts unsigned tokens; local development only.
	AllowInsecure bool
}

// Issuer is the realm's OIDC issuer URL, or "" when Keycloak is not configured.
func (k KeycloakConfig) Issuer() string {
	if k.URL == "" || k.Realm == "" {
		return ""
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	ServiceTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	Backend string // memory or redis
	RPS     float64
	Burst   int
	Window  time.Duration
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SeedConfig selects fixtures loaded at startup: "none", "demo" (embedded),
// "file" (Path on disk) or "minio" (Path is the object key).
type SeedConfig struct {
	Source string
	Path   string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

// Enabled reports whether object storage is configured.
func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("MONGODB_DATABASE", "erp")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_RETRIES", 3)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "erp-core")
	v.SetDefault("JWT_SERVICE_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW", "1s")
	v.SetDefault("REPORT_CACHE_ENABLED", true)
	v.SetDefault("REPORT_CACHE_TTL", "5m")
	v.SetDefault("SEED_SOURCE", "none")
	v.SetDefault("MINIO_BUCKET", "erp")
	v.SetDefault("MINIO_PRESIGN_TTL", "15m")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			Retries:  v.GetInt("MONGODB_RETRIES"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  v.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecure: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			Issuer:          v.GetString("JWT_ISSUER"),
			ServiceTokenTTL: time.Duration(v.GetInt("JWT_SERVICE_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			Backend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("REPORT_CACHE_ENABLED"),
			TTL:     v.GetDuration("REPORT_CACHE_TTL"),
		},
		Seed: SeedConfig{
			Source: strings.ToLower(v.GetString("SEED_SOURCE")),
			Path:   v.GetString("SEED_PATH"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PresignTTL: v.GetDuration("MINIO_PRESIGN_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.Enabled && !c.Redis.Enabled() {
			return fmt.Errorf("config: RATE_LIMIT_BACKEND=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	switch c.Seed.Source {
	case "none", "demo":
	case "file", "minio":
		if c.Seed.Path == "" {
			return fmt.Errorf("config: SEED_SOURCE=%s requires SEED_PATH", c.Seed.Source)
		}
		if c.Seed.Source == "minio" && !c.MinIO.Enabled() {
			return fmt.Errorf("config: SEED_SOURCE=minio requires MINIO_ENDPOINT")
		}
	default:
		return fmt.Errorf("config: unknown SEED_SOURCE %q", c.Seed.Source)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate limit needs a positive RATE_LIMIT_RPS or RATE_LIMIT_BURST")
	}
	return nil
}
