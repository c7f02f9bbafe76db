package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataDir      string
	SQLiteDBPath string
	HistoryLimit int

	// Logging
	LogLevel  string
	LogFormat string

	// Backups
	BackupTarget          string
	BackupDir             string
	BackupPrefix          string
	BackupRetentionDays   int
	BackupInterval        time.Duration
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
	S3Bucket              string
	S3Region              string
	S3Endpoint            string
	S3AccessKey           string
	S3SecretKey           string
	OAuthRedirectPort     string

	// Host bridge
	AMQPURL       string
	AMQPExchange  string
	AMQPUIQueue   string
	AMQPHostQueue string

	// Cache
	RedisURL  string
	CacheTTL  time.Duration
	CacheSize int

	// Auth
	JWTSecret  string
	SessionTTL time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Host services
	ConsoleTimeout time.Duration
	AppVersion     string
	LatestVersion  string

	// Worker
	WorkerMetricsAddr string
}

var backupTargets = []string{"local", "drive", "s3", "memory"}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SQLITE_DB_PATH", "./data/ispledger.db")
	v.SetDefault("HISTORY_LIMIT", 20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("BACKUP_TARGET", "local")
	v.SetDefault("BACKUP_DIR", "./data/Backups")
	v.SetDefault("BACKUP_PREFIX", "ispledger")
	v.SetDefault("BACKUP_RETENTION_DAYS", 10)
	v.SetDefault("BACKUP_INTERVAL", time.Hour)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("OAUTH_REDIRECT_PORT", "8085")

	v.SetDefault("AMQP_EXCHANGE", "ispledger")
	v.SetDefault("AMQP_UI_QUEUE", "ispledger.ui")
	v.SetDefault("AMQP_HOST_QUEUE", "ispledger.host")

	v.SetDefault("CACHE_TTL", time.Minute)
	v.SetDefault("CACHE_SIZE", 64)

	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("CONSOLE_TIMEOUT", 2*time.Minute)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")
}

// Load reads the configuration from the environment. A .env file, when
// present, is loaded by the binaries before calling Load.
func Load() *Config {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:         v.GetString("PORT"),
		DataDir:      v.GetString("DATA_DIR"),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		HistoryLimit: v.GetInt("HISTORY_LIMIT"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		LogFormat:    v.GetString("LOG_FORMAT"),

		BackupTarget:          strings.ToLower(v.GetString("BACKUP_TARGET")),
		BackupDir:             v.GetString("BACKUP_DIR"),
		BackupPrefix:          v.GetString("BACKUP_PREFIX"),
		BackupRetentionDays:   v.GetInt("BACKUP_RETENTION_DAYS"),
		BackupInterval:        v.GetDuration("BACKUP_INTERVAL"),
		GoogleOAuthClientFile: v.GetString("GOOGLE_OAUTH_CLIENT_FILE"),
		GoogleOAuthTokenFile:  v.GetString("GOOGLE_OAUTH_TOKEN_FILE"),
		GoogleOAuthClientJSON: v.GetString("GOOGLE_OAUTH_CLIENT_JSON"),
		GoogleOAuthTokenJSON:  v.GetString("GOOGLE_OAUTH_TOKEN_JSON"),
		S3Bucket:              v.GetString("S3_BUCKET"),
		S3Region:              v.GetString("S3_REGION"),
		S3Endpoint:            v.GetString("S3_ENDPOINT"),
		S3AccessKey:           v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:           v.GetString("S3_SECRET_KEY"),
		OAuthRedirectPort:     v.GetString("OAUTH_REDIRECT_PORT"),

		AMQPURL:       v.GetString("AMQP_URL"),
		AMQPExchange:  v.GetString("AMQP_EXCHANGE"),
		AMQPUIQueue:   v.GetString("AMQP_UI_QUEUE"),
		AMQPHostQueue: v.GetString("AMQP_HOST_QUEUE"),

		RedisURL:  v.GetString("REDIS_URL"),
		CacheTTL:  v.GetDuration("CACHE_TTL"),
		CacheSize: v.GetInt("CACHE_SIZE"),

		JWTSecret:  v.GetString("JWT_SECRET"),
		SessionTTL: v.GetDuration("SESSION_TTL"),

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		ConsoleTimeout: v.GetDuration("CONSOLE_TIMEOUT"),
		AppVersion:     v.GetString("APP_VERSION"),
		LatestVersion:  v.GetString("LATEST_VERSION"),

		WorkerMetricsAddr: v.GetString("WORKER_METRICS_ADDR"),
	}
}

// BackupRetention is the local backup retention window.
func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.BackupRetentionDays) * 24 * time.Hour
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Sprintf("invalid history limit %d: must not be negative", c.HistoryLimit))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !slices.Contains(backupTargets, c.BackupTarget) {
		errs = append(errs, fmt.Sprintf("invalid backup target '%s': must be one of %v", c.BackupTarget, backupTargets))
	}
	switch c.BackupTarget {
	case "local":
		if c.BackupDir == "" {
			errs = append(errs, "BACKUP_DIR is required for local backups")
		}
	case "drive":
		if c.GoogleOAuthClientFile == "" && c.GoogleOAuthClientJSON == "" {
			errs = append(errs, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for drive backups")
		}
		if c.GoogleOAuthTokenFile == "" && c.GoogleOAuthTokenJSON == "" {
			errs = append(errs, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for drive backups")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, "S3_BUCKET is required for s3 backups")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errs = append(errs, "S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	}
	if c.BackupRetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("invalid backup retention %d days: must be at least 1", c.BackupRetentionDays))
	}
	if c.BackupInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid backup interval %v: must be at least 1 minute", c.BackupInterval))
	} else if c.BackupInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid backup interval %v: must be at most 24 hours", c.BackupInterval))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPUIQueue == "" || c.AMQPHostQueue == "" {
			errs = append(errs, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" {
		if parsed, err := url.Parse(c.RedisURL); err != nil || (parsed.Scheme != "redis" && parsed.Scheme != "rediss") {
			errs = append(errs, fmt.Sprintf("invalid Redis URL '%s': must use redis:// or rediss://", c.RedisURL))
		}
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		errs = append(errs, "JWT_SECRET must be at least 16 characters")
	}
	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if p, err := strconv.Atoi(c.OAuthRedirectPort); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Sprintf("invalid OAuth redirect port '%s'", c.OAuthRedirectPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
