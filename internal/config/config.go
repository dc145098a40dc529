package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinJWTSecretLength はJWT署名鍵の最小バイト数。
const MinJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Rate Limit
	RateLimitPerMinute       int
	RateLimitCleanupInterval time.Duration
	RateLimitIdleTTL         time.Duration

	// Request size
	MaxContentLength           int64
	NewsletterMaxContentLength int64

	// Password hashing (argon2id)
	Argon2MemoryKB    int
	Argon2Iterations  int
	Argon2Parallelism int

	// Email delivery
	EmailAPIBaseURL  string
	EmailSender      string
	EmailTimeout     time.Duration
	EmailMaxAttempts int

	// Subscription
	ConfirmationTokenTTL time.Duration
	TokenRetentionDays   int

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Telemetry
	OTELEndpoint string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string
}

// Load はカレントディレクトリの .env（存在すれば）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile は指定した .env ファイルを読み込んだうえでConfigを組み立てる。
// 既に設定されている環境変数は .env の値で上書きされない。
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// Optional fields with defaults
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", "newsletter")
	cfg.AccessTokenTTL = getEnvSeconds("ACCESS_TOKEN_TTL", 900)
	cfg.RefreshTokenTTL = getEnvSeconds("REFRESH_TOKEN_TTL", 604800)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 10)
	cfg.RateLimitCleanupInterval = getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	cfg.RateLimitIdleTTL = getEnvDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute)
	cfg.MaxContentLength = getEnvInt64("MAX_CONTENT_LENGTH", 1024)
	cfg.NewsletterMaxContentLength = getEnvInt64("NEWSLETTER_MAX_CONTENT_LENGTH", 262144)
	cfg.Argon2MemoryKB = getEnvInt("ARGON2_MEMORY_KB", 65536)
	cfg.Argon2Iterations = getEnvInt("ARGON2_ITERATIONS", 3)
	cfg.Argon2Parallelism = getEnvInt("ARGON2_PARALLELISM", 2)
	cfg.EmailAPIBaseURL = strings.TrimRight(getEnvString("EMAIL_API_BASE_URL", ""), "/")
	cfg.EmailSender = getEnvString("EMAIL_SENDER", "newsletter@example.com")
	cfg.EmailTimeout = getEnvDuration("EMAIL_TIMEOUT", 10*time.Second)
	cfg.EmailMaxAttempts = getEnvInt("EMAIL_MAX_ATTEMPTS", 3)
	cfg.ConfirmationTokenTTL = getEnvDuration("CONFIRMATION_TOKEN_TTL", 24*time.Hour)
	cfg.TokenRetentionDays = getEnvInt("TOKEN_RETENTION_DAYS", 7)
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "newsletter.events")
	cfg.OTELEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if err := cfg.validateArgon2(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvSeconds は秒数の整数で指定された期間を読み込む。
func getEnvSeconds(key string, defaultSec int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSec)) * time.Second
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateArgon2 はargon2パラメータがハッシュ関数の引数型に収まるかを検証する。
func (c *Config) validateArgon2() error {
	var errs []error
	if c.Argon2MemoryKB < 1 || uint64(c.Argon2MemoryKB) > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY_KB must be between 1 and %d, got %d", uint64(math.MaxUint32), c.Argon2MemoryKB))
	}
	if c.Argon2Iterations < 1 || uint64(c.Argon2Iterations) > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be between 1 and %d, got %d", uint64(math.MaxUint32), c.Argon2Iterations))
	}
	if c.Argon2Parallelism < 1 || c.Argon2Parallelism > math.MaxUint8 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be between 1 and %d, got %d", math.MaxUint8, c.Argon2Parallelism))
	}
	return errors.Join(errs...)
}
