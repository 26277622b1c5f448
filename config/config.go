package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Store     StoreConfig
	Bot       BotConfig
	Chat      ChatConfig
	Operators []OperatorConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/tracker?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	SecretParam string // SSM parameter name; when set it replaces Secret at startup
	ExpireHours int
}

// AWSConfig holds AWS credentials and the exports bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ExportsBucket        string
	PresignExpireMinutes int
}

// StoreConfig selects the payment store backend.
type StoreConfig struct {
	Backend     string // postgres, sqlite, dynamodb or memory
	SQLitePath  string
	DynamoTable string
}

// BotConfig holds conversation engine settings. CONFIG_FILE may overlay it from YAML.
type BotConfig struct {
	StepTimeoutSec    int               `mapstructure:"step_timeout_sec"`
	ConfirmTimeoutSec int               `mapstructure:"confirm_timeout_sec"`
	CommitTimeoutSec  int               `mapstructure:"commit_timeout_sec"`
	ResolveTimeoutSec int               `mapstructure:"resolve_timeout_sec"`
	SweepIntervalMS   int               `mapstructure:"sweep_interval_ms"`
	DefaultCurrency   string            `mapstructure:"default_currency"`
	MaxSessions       int               `mapstructure:"max_sessions"`
	AllowedUsers      []string          `mapstructure:"allowed_users"`
	CommandPrefix     string            `mapstructure:"command_prefix"`
	CancelWords       []string          `mapstructure:"cancel_words"`
	SkipWords         []string          `mapstructure:"skip_words"`
	CurrencySymbols   map[string]string `mapstructure:"currency_symbols"`
}

// StepTimeout is the per-step dialog deadline.
func (b BotConfig) StepTimeout() time.Duration { return time.Duration(b.StepTimeoutSec) * time.Second }

// ConfirmTimeout is the confirmation gate deadline.
func (b BotConfig) ConfirmTimeout() time.Duration {
	return time.Duration(b.ConfirmTimeoutSec) * time.Second
}

// CommitTimeout bounds a single store commit.
func (b BotConfig) CommitTimeout() time.Duration {
	return time.Duration(b.CommitTimeoutSec) * time.Second
}

// ResolveTimeout bounds short-link resolution.
func (b BotConfig) ResolveTimeout() time.Duration {
	return time.Duration(b.ResolveTimeoutSec) * time.Second
}

// SweepInterval is how often expired sessions are swept.
func (b BotConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalMS) * time.Millisecond
}

// ChatConfig holds chat transport settings.
type ChatConfig struct {
	LogChannel    string // channel receiving commit announcements; empty disables them
	PubSubChannel string
	NodeID        int64 // snowflake node, unique per instance
	BotUserID     string
}

// OperatorConfig is one HTTP API operator parsed from OPERATORS.
type OperatorConfig struct {
	Name         string
	Role         string
	PasswordHash string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	operators, err := parseOperators(getEnv("OPERATORS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "tracker"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			SecretParam: getEnv("JWT_SECRET_PARAM", ""),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", "creator-payment-exports"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
			SQLitePath:  getEnv("SQLITE_PATH", "payments.db"),
			DynamoTable: getEnv("DYNAMODB_TABLE", "payments"),
		},
		Bot: BotConfig{
			StepTimeoutSec:    getEnvInt("BOT_STEP_TIMEOUT_SEC", 60),
			ConfirmTimeoutSec: getEnvInt("BOT_CONFIRM_TIMEOUT_SEC", 30),
			CommitTimeoutSec:  getEnvInt("BOT_COMMIT_TIMEOUT_SEC", 10),
			ResolveTimeoutSec: getEnvInt("RESOLVE_TIMEOUT_SEC", 10),
			SweepIntervalMS:   getEnvInt("BOT_SWEEP_INTERVAL_MS", 1000),
			DefaultCurrency:   strings.ToUpper(getEnv("BOT_DEFAULT_CURRENCY", "USD")),
			MaxSessions:       getEnvInt("BOT_MAX_SESSIONS", 1000),
			AllowedUsers:      splitTrim(getEnv("BOT_ALLOWED_USERS", ""), ","),
			CommandPrefix:     getEnv("BOT_COMMAND_PREFIX", "!"),
			CancelWords:       splitTrim(getEnv("BOT_CANCEL_WORDS", "cancel,stop,exit"), ","),
			SkipWords:         splitTrim(getEnv("BOT_SKIP_WORDS", "skip,none"), ","),
			CurrencySymbols:   map[string]string{"$": "USD", "€": "EUR", "£": "GBP"},
		},
		Chat: ChatConfig{
			LogChannel:    getEnv("CHAT_LOG_CHANNEL", ""),
			PubSubChannel: getEnv("CHAT_PUBSUB_CHANNEL", "chat:events"),
			NodeID:        int64(getEnvInt("CHAT_NODE_ID", 1)),
			BotUserID:     getEnv("BOT_USER_ID", "payment-bot"),
		},
		Operators: operators,
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := overlayBot(path, &cfg.Bot); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlayBot replaces the Bot keys present in the YAML file at path.
func overlayBot(path string, bot *BotConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if !v.IsSet("bot") {
		return nil
	}
	if err := v.Sub("bot").Unmarshal(bot); err != nil {
		return fmt.Errorf("decode bot config: %w", err)
	}
	bot.DefaultCurrency = strings.ToUpper(bot.DefaultCurrency)
	return nil
}

// parseOperators reads "name:role:bcrypt-hash" entries separated by commas.
func parseOperators(s string) ([]OperatorConfig, error) {
	var out []OperatorConfig
	for _, entry := range splitTrim(s, ",") {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid OPERATORS entry %q: want name:role:hash", entry)
		}
		out = append(out, OperatorConfig{Name: parts[0], Role: parts[1], PasswordHash: parts[2]})
	}
	return out, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
