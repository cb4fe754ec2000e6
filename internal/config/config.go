package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinAuthSecretLength is the shortest AUTH_SECRET the server accepts.
const MinAuthSecretLength = 32

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	NegotiationTTLHours    int
	MaxOfferRounds         int
	ExpirySweepSpec        string
	DemandCacheTTLSeconds  int
	TrustCacheTTLSeconds   int
	LogLevel               string
	LoginAttemptsPerMinute int
}

// LoadDotEnv loads variables from the given files (".env" by default)
// without overriding the real environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		NegotiationTTLHours:    positiveInt("NEGOTIATION_TTL_HOURS", 24),
		MaxOfferRounds:         nonNegativeInt("MAX_OFFER_ROUNDS", 0),
		ExpirySweepSpec:        strings.TrimSpace(getEnv("EXPIRY_SWEEP_SPEC", "@hourly")),
		DemandCacheTTLSeconds:  positiveInt("DEMAND_CACHE_TTL_SECONDS", 60),
		TrustCacheTTLSeconds:   positiveInt("TRUST_CACHE_TTL_SECONDS", 300),
		LogLevel:               strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		LoginAttemptsPerMinute: positiveInt("LOGIN_ATTEMPTS_PER_MINUTE", 5),
	}

	return cfg
}

// Validate reports settings the server must not start with.
func (c Config) Validate() error {
	if len(c.AuthSecret) < MinAuthSecretLength {
		return fmt.Errorf("AUTH_SECRET must be at least %d characters", MinAuthSecretLength)
	}
	if c.ExpirySweepSpec == "" {
		return fmt.Errorf("EXPIRY_SWEEP_SPEC must not be empty")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) NegotiationTTL() time.Duration {
	return time.Duration(c.NegotiationTTLHours) * time.Hour
}

func (c Config) DemandCacheTTL() time.Duration {
	return time.Duration(c.DemandCacheTTLSeconds) * time.Second
}

func (c Config) TrustCacheTTL() time.Duration {
	return time.Duration(c.TrustCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func nonNegativeInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
