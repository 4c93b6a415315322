package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server    ServerConfig
	Logging   LoggingConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Scylla    ScyllaConfig
	Kafka     KafkaConfig
	SMTP      SMTPConfig
	Admin     AdminSeedConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	FrontendOrigin string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Backend selector values for AuthConfig.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendScylla = "scylla"
)

type AuthConfig struct {
	OTPTTL            time.Duration
	LockoutWindow     time.Duration
	AttemptThreshold  int
	MinPasswordLength int

	// ChallengeBackend selects where challenges and attempt records live:
	// "memory" (single instance) or "redis" (shared across instances).
	ChallengeBackend string

	// IdentityBackend selects the credential store: "scylla" or "memory".
	IdentityBackend string
}

type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	GlobalLimit int
	AuthLimit   int
}

type RedisConfig struct {
	URL      string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AdminSeedConfig struct {
	Email    string
	Password string
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one exists. Returns an error for missing required secrets so
// the process fails fast at startup instead of at the first login.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject env vars directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 5000),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			FrontendOrigin: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_SECRET", ""),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
			AccessTTL:     getEnvDuration("JWT_ACCESS_TTL", 8*time.Hour),
			RefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Auth: AuthConfig{
			OTPTTL:            getEnvDuration("OTP_TTL", 5*time.Minute),
			LockoutWindow:     getEnvDuration("LOCKOUT_WINDOW", 15*time.Minute),
			AttemptThreshold:  getEnvInt("ATTEMPT_THRESHOLD", 5),
			MinPasswordLength: getEnvInt("MIN_PASSWORD_LENGTH", 6),
			ChallengeBackend:  getEnv("CHALLENGE_BACKEND", "memory"),
			IdentityBackend:   getEnv("IDENTITY_BACKEND", "scylla"),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvBool("RATE_LIMIT_ENABLED", true),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			GlobalLimit: getEnvInt("RATE_LIMIT_GLOBAL", 100),
			AuthLimit:   getEnvInt("RATE_LIMIT_AUTH", 10),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "pics"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_SECURITY_TOPIC", "pics.security-events"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "CYBERSEC Systems <no-reply@pics.local>"),
		},
		Admin: AdminSeedConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		if c.IsDevelopment() {
			// Dev fallback keeps local bring-up friction-free. Never valid
			// outside development.
			if c.JWT.AccessSecret == "" {
				c.JWT.AccessSecret = "dev-access-secret"
			}
			if c.JWT.RefreshSecret == "" {
				c.JWT.RefreshSecret = "dev-refresh-secret"
			}
		} else {
			return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET are required outside development")
		}
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.Auth.AttemptThreshold < 1 {
		return fmt.Errorf("ATTEMPT_THRESHOLD must be at least 1")
	}
	switch c.Auth.ChallengeBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown CHALLENGE_BACKEND %q", c.Auth.ChallengeBackend)
	}
	switch c.Auth.IdentityBackend {
	case BackendMemory, BackendScylla:
	default:
		return fmt.Errorf("unknown IDENTITY_BACKEND %q", c.Auth.IdentityBackend)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetServerAddress returns the listen address for the HTTP server.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
