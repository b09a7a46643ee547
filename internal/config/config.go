package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	commoncfg "coldtrack-sync/common/config"
)

// ErrConfig marks missing or invalid startup configuration
var ErrConfig = errors.New("invalid configuration")

// Config coldtrack-sync settings
type Config struct {
	HTTP struct {
		Addr       string
		AdminToken string // bearer token for /api/sync/*, empty disables the check
	}
	Database commoncfg.DatabaseConfig
	Redis    struct {
		commoncfg.RedisConfig
		Enabled bool
	}
	MQTT commoncfg.MQTTConfig

	Firebase FirebaseConfig

	Sync struct {
		Interval time.Duration
		// ListenersEnabled turns on per-device change streams. Keep off for
		// large fleets, the periodic pass is the durability backstop.
		ListenersEnabled    bool
		UserEveryCycles     int
		ReadingLookbackDays int
		// FullReadingScanEvery reads whole status trees every N cycles
		FullReadingScanEvery int
		Timezone             string
		Location             *time.Location
		SeenTTL              time.Duration
		LiveTTL              time.Duration
		RunStream            string
		RunStreamMaxLen      int64
		EventTopicPrefix     string
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// FirebaseConfig live store and identity provider settings
type FirebaseConfig struct {
	DatabaseURL     string
	CredentialsPath string // service account JSON
	DatabaseSecret  string // legacy ?auth= secret
	ProjectID       string
	Timeout         time.Duration
}

// Load reads the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.AdminToken = getEnv("SYNC_ADMIN_TOKEN", "")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "coldtrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "coldtrack-sync"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Firebase.DatabaseURL = getEnv("FIREBASE_DATABASE_URL", "")
	cfg.Firebase.CredentialsPath = getEnv("FIREBASE_CREDENTIALS_PATH", "")
	cfg.Firebase.DatabaseSecret = getEnv("FIREBASE_DATABASE_SECRET", "")
	cfg.Firebase.ProjectID = getEnv("FIREBASE_PROJECT_ID", "")
	cfg.Firebase.Timeout = getEnvDuration("FIREBASE_TIMEOUT", 15*time.Second)

	cfg.Sync.Interval = getEnvDuration("SYNC_INTERVAL", 30*time.Second)
	cfg.Sync.ListenersEnabled = getEnv("SYNC_LISTENERS_ENABLED", "false") == "true"
	cfg.Sync.UserEveryCycles = getEnvInt("SYNC_USER_EVERY_CYCLES", 20)
	cfg.Sync.ReadingLookbackDays = getEnvInt("SYNC_READING_LOOKBACK_DAYS", 1)
	cfg.Sync.FullReadingScanEvery = getEnvInt("SYNC_READING_FULL_SCAN_EVERY", 1)
	cfg.Sync.Timezone = getEnv("SYNC_TIMEZONE", "Local")
	cfg.Sync.SeenTTL = getEnvDuration("SYNC_SEEN_TTL", 24*time.Hour)
	cfg.Sync.LiveTTL = getEnvDuration("SYNC_LIVE_TTL", 5*time.Minute)
	cfg.Sync.RunStream = getEnv("SYNC_RUN_STREAM", "coldtrack:sync:runs")
	cfg.Sync.RunStreamMaxLen = int64(getEnvInt("SYNC_RUN_STREAM_MAXLEN", 1000))
	cfg.Sync.EventTopicPrefix = getEnv("SYNC_EVENT_TOPIC_PREFIX", "coldtrack/events")

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_TIMEZONE %q: %v", ErrConfig, cfg.Sync.Timezone, err)
	}
	cfg.Sync.Location = loc

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	return cfg, nil
}

// ValidateLiveStore checks what the scheduler and backfill need to reach the live store
func (c *Config) ValidateLiveStore() error {
	if c.Firebase.DatabaseURL == "" {
		return fmt.Errorf("%w: FIREBASE_DATABASE_URL is required", ErrConfig)
	}
	if c.Firebase.CredentialsPath == "" && c.Firebase.DatabaseSecret == "" {
		return fmt.Errorf("%w: FIREBASE_CREDENTIALS_PATH or FIREBASE_DATABASE_SECRET is required", ErrConfig)
	}
	return nil
}

// ValidateIdentity checks what the user sync needs
func (c *Config) ValidateIdentity() error {
	if c.Firebase.CredentialsPath == "" {
		return fmt.Errorf("%w: FIREBASE_CREDENTIALS_PATH is required for user sync", ErrConfig)
	}
	if c.Firebase.ProjectID == "" {
		return fmt.Errorf("%w: FIREBASE_PROJECT_ID is required for user sync", ErrConfig)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
