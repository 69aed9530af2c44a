package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by BELIEF_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BELIEF_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// StoreDriver returns the fact store backend.
// Defaults to "sqlite" if not set.
// Valid values: memory, sqlite, postgres
func StoreDriver() string {
	d := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if d == "" {
		return "sqlite"
	}
	return d
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "data/beliefs.db"
	}
	return p
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// GatewayTimeout bounds every gateway call.
// Defaults to 5s if not set.
func GatewayTimeout() time.Duration {
	return durationOr("GATEWAY_TIMEOUT", 5*time.Second)
}

// SessionIdleTTL is how long an unused session is kept.
// Defaults to 30m if not set.
func SessionIdleTTL() time.Duration {
	return durationOr("SESSION_IDLE_TTL", 30*time.Minute)
}

// ReasoningMaxDepth bounds instance_of chain walks.
// Defaults to 32 if not set.
func ReasoningMaxDepth() int {
	n, err := strconv.Atoi(os.Getenv("REASONING_MAX_DEPTH"))
	if err != nil || n <= 0 {
		return 32
	}
	return n
}

// VocabularyPath points to an optional YAML file of extra relations.
func VocabularyPath() string {
	return os.Getenv("VOCABULARY_PATH")
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
