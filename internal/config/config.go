package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

// Config is the immutable process configuration. It is built once at startup
// and passed explicitly into the components that need it.
type Config struct {
	AppEnv string
	Port   int

	// Postgres DSN (pgx stdlib driver)
	DBDSN string

	// Redis (revocation list)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Token issuance
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	RefreshTTLDays int

	// Brute-force lockout
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Password hashing work factor
	BcryptCost int

	// Login rate limit (per client IP)
	RLEnabled bool
	RLBurst   int
	RLPerSec  int

	LogLevel string
}

// Production reports whether the process runs with production cookie policy.
func (c *Config) Production() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// Load reads configuration from the environment (and an optional .env file)
// and fails fast on anything the process cannot run without.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "dev"),
		Port:   getInt("PORT", 8080),

		DBDSN: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "zhardem"),
		AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTLDays: getInt("REFRESH_TTL_DAYS", 14),

		LockoutThreshold: getInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  getDuration("LOCKOUT_DURATION", 15*time.Minute),

		BcryptCost: getInt("BCRYPT_COST", 10),

		RLEnabled: getBool("RL_ENABLED", true),
		RLBurst:   getInt("RL_BURST", 10),
		RLPerSec:  getInt("RL_PER_SECOND", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("missing DATABASE_URL")
	}
	// An absent or weak signing secret is a fatal startup condition, never a
	// per-request error.
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.RefreshTTLDays <= 0 {
		return nil, fmt.Errorf("REFRESH_TTL_DAYS must be positive")
	}
	if cfg.LockoutThreshold <= 0 || cfg.LockoutDuration <= 0 {
		return nil, fmt.Errorf("lockout threshold and duration must be positive")
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
