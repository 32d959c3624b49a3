// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for stats, history and the response cache (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	// LegacyReporting reproduces the fixed confidence values and the 91% backtest
	// floor. Raw values are reported alongside in either mode.
	LegacyReporting bool

	MineCount  int
	RandomSeed int64 // 0 = seeded from the clock

	History  HistoryConfig
	Client   ClientConfig
	Feed     FeedConfig
	Backup   BackupConfig
	Schedule ScheduleConfig
}

// HistoryConfig controls retention of the per-game history stores
type HistoryConfig struct {
	Size   int           // Maximum entries kept and analyzed
	MaxAge time.Duration // Outcomes older than this are pruned
}

// ClientConfig controls the HTTP pull client
type ClientConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   float64 // requests per second per host
	DoubleURLs  []string
	MinesURLs   []string
	UserAgent   string
	BreakerTrip uint32 // consecutive failures before an endpoint is skipped
}

// FeedConfig controls the push subscription
type FeedConfig struct {
	Enabled        bool
	URL            string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	JoinDelay      time.Duration
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // Empty for AWS, set for R2/MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Retention       int // Number of archives kept
}

// Enabled reports whether a bucket is configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// ScheduleConfig holds cron expressions (with seconds) for background jobs
type ScheduleConfig struct {
	Refresh  string
	Backtest string
	Save     string
	Cleanup  string
	Backup   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", true),
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LegacyReporting: getEnvAsBool("LEGACY_REPORTING", false),
		MineCount:       getEnvAsInt("MINE_COUNT", 5),
		RandomSeed:      int64(getEnvAsInt("RANDOM_SEED", 0)),
		History: HistoryConfig{
			Size:   getEnvAsInt("HISTORY_SIZE", 100),
			MaxAge: getEnvAsDuration("HISTORY_MAX_AGE", 24*time.Hour),
		},
		Client: ClientConfig{
			MaxRetries: getEnvAsInt("MAX_RETRIES", 5),
			RetryDelay: getEnvAsDuration("RETRY_DELAY", 3*time.Second),
			Timeout:    getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
			CacheTTL:   getEnvAsDuration("CACHE_TTL", 10*time.Minute),
			RateLimit:  getEnvAsFloat("RATE_LIMIT", 2),
			DoubleURLs: []string{
				"https://blaze.com/api/roulette_games/recent",
				"https://api-v2.blaze.com/roulette_games/recent",
			},
			MinesURLs: []string{
				"https://blaze.com/api/mines_games/recent",
				"https://api-v2.blaze.com/mines_games/recent",
			},
			UserAgent:   getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
			BreakerTrip: uint32(getEnvAsInt("BREAKER_TRIP", 3)),
		},
		Feed: FeedConfig{
			Enabled:        getEnvAsBool("FEED_ENABLED", false),
			URL:            getEnv("FEED_URL", "wss://api-v2.blaze.com/replication/?EIO=3&transport=websocket"),
			ReconnectDelay: getEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
			DialTimeout:    getEnvAsDuration("FEED_DIAL_TIMEOUT", 10*time.Second),
			JoinDelay:      time.Second,
		},
		Backup: BackupConfig{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "augur-backups/"),
			Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
		},
		Schedule: ScheduleConfig{
			Refresh:  getEnv("REFRESH_SCHEDULE", "0 */5 * * * *"),
			Backtest: getEnv("BACKTEST_SCHEDULE", "0 0 * * * *"),
			Save:     getEnv("SAVE_SCHEDULE", "30 * * * * *"),
			Cleanup:  getEnv("CLEANUP_SCHEDULE", "0 0 3 * * *"),
			Backup:   getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration values are usable
func (c *Config) Validate() error {
	if c.History.Size <= 0 {
		return fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.History.Size)
	}
	if c.History.MaxAge < 0 {
		return fmt.Errorf("HISTORY_MAX_AGE must not be negative, got %s", c.History.MaxAge)
	}
	if c.MineCount <= 0 || c.MineCount >= 25 {
		return fmt.Errorf("MINE_COUNT must be between 1 and 24, got %d", c.MineCount)
	}
	if c.Client.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.Client.MaxRetries)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Client.Timeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// Path joins name onto the data directory
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
