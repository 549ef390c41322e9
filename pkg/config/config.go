package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "MEDIARELAY_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

const (
	defaultWebhookPath        = "/telegram/webhook"
	defaultTTLSeconds         = 3600
	defaultJitterMinMillis    = 50
	defaultJitterMaxMillis    = 800
	defaultMaxParallel        = 4
	defaultPageSize           = 6
	defaultTimeZone           = "Asia/Shanghai"
	defaultChannelList        = "TG:telegram"
	defaultRequestTimeoutSecs = 60
	defaultGatewayHost        = "0.0.0.0"
	defaultGatewayPort        = 18790
	defaultShutdownSeconds    = 30
)

// Config is the root runtime configuration loaded from config.json or config.yaml.
type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Batch    BatchConfig    `json:"batch" yaml:"batch"`
	Catalog  CatalogConfig  `json:"catalog" yaml:"catalog"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `env:"MEDIARELAY_LOG_FORMAT" json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `env:"MEDIARELAY_LOG_LEVEL" json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `env:"MEDIARELAY_LOG_ADD_SOURCE" json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// TelegramConfig configures the bot and how updates reach it.
type TelegramConfig struct {
	Token       string   `env:"MEDIARELAY_TELEGRAM_TOKEN" json:"token" yaml:"token" validate:"required"`
	Mode        string   `env:"MEDIARELAY_TELEGRAM_MODE" json:"mode" yaml:"mode" validate:"oneof=polling webhook"`
	WebhookPath string   `env:"MEDIARELAY_TELEGRAM_WEBHOOK_PATH" json:"webhook_path" yaml:"webhook_path" validate:"startswith=/"`
	WebhookURL  string   `env:"MEDIARELAY_TELEGRAM_WEBHOOK_URL" json:"webhook_url" yaml:"webhook_url" validate:"omitempty,url"`
	SecretToken string   `env:"MEDIARELAY_TELEGRAM_SECRET_TOKEN" json:"secret_token" yaml:"secret_token" validate:"required_if=Mode webhook"`
	AllowFrom   []string `env:"MEDIARELAY_TELEGRAM_ALLOW_FROM" json:"allow_from" yaml:"allow_from"`
}

// StorageConfig points at the storage backend HTTP API.
type StorageConfig struct {
	UploadURL             string `env:"MEDIARELAY_STORAGE_UPLOAD_URL" json:"upload_url" yaml:"upload_url" validate:"required,url"`
	UploadToken           string `env:"MEDIARELAY_STORAGE_UPLOAD_TOKEN" json:"upload_token" yaml:"upload_token"`
	ListToken             string `env:"MEDIARELAY_STORAGE_LIST_TOKEN" json:"list_token" yaml:"list_token"`
	AccessURL             string `env:"MEDIARELAY_STORAGE_ACCESS_URL" json:"access_url" yaml:"access_url" validate:"omitempty,url"`
	RequestTimeoutSeconds int    `env:"MEDIARELAY_STORAGE_REQUEST_TIMEOUT_SECONDS" json:"request_timeout_seconds" yaml:"request_timeout_seconds" validate:"gte=0"`
}

// RequestTimeout returns the per-request timeout for storage and download calls.
func (c StorageConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StoreConfig selects and configures the coordination key-value store.
type StoreConfig struct {
	Backend    string         `env:"MEDIARELAY_STORE_BACKEND" json:"backend" yaml:"backend" validate:"oneof=memory dynamodb postgres"`
	TTLSeconds int            `env:"MEDIARELAY_STORE_TTL_SECONDS" json:"ttl_seconds" yaml:"ttl_seconds" validate:"gt=0"`
	DynamoDB   DynamoDBConfig `json:"dynamodb" yaml:"dynamodb"`
	Postgres   PostgresConfig `json:"postgres" yaml:"postgres"`
}

// TTL is the lifetime of every coordination key.
func (c StoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DynamoDBConfig configures the DynamoDB store backend.
type DynamoDBConfig struct {
	Table    string `env:"MEDIARELAY_DYNAMODB_TABLE" json:"table" yaml:"table"`
	Region   string `env:"MEDIARELAY_DYNAMODB_REGION" json:"region" yaml:"region"`
	Endpoint string `env:"MEDIARELAY_DYNAMODB_ENDPOINT" json:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
}

// PostgresConfig configures the PostgreSQL store backend.
type PostgresConfig struct {
	DSN   string `env:"MEDIARELAY_POSTGRES_DSN" json:"dsn" yaml:"dsn"`
	Table string `env:"MEDIARELAY_POSTGRES_TABLE" json:"table" yaml:"table"`
}

// BatchConfig tunes media-group coordination and batch uploads.
type BatchConfig struct {
	JitterMinMillis int `env:"MEDIARELAY_BATCH_JITTER_MIN_MS" json:"jitter_min_ms" yaml:"jitter_min_ms" validate:"gte=0"`
	JitterMaxMillis int `env:"MEDIARELAY_BATCH_JITTER_MAX_MS" json:"jitter_max_ms" yaml:"jitter_max_ms" validate:"gtefield=JitterMinMillis"`
	MaxParallel     int `env:"MEDIARELAY_BATCH_MAX_PARALLEL" json:"max_parallel" yaml:"max_parallel" validate:"gt=0"`
}

// Jitter returns the bounds of the randomized delay before claiming panel leadership.
func (c BatchConfig) Jitter() (time.Duration, time.Duration) {
	return time.Duration(c.JitterMinMillis) * time.Millisecond, time.Duration(c.JitterMaxMillis) * time.Millisecond
}

// CatalogConfig holds the file-level channel and directory lists.
//
// These are fallbacks: the catalog source re-reads MEDIARELAY_CHANNEL_LIST and
// MEDIARELAY_DIR_LIST on every request.
type CatalogConfig struct {
	Channels    string `json:"channels" yaml:"channels"`
	Directories string `json:"directories" yaml:"directories"`
	PageSize    int    `env:"MEDIARELAY_LIST_PAGE_SIZE" json:"page_size" yaml:"page_size" validate:"gt=0,lte=20"`
	TimeZone    string `env:"MEDIARELAY_TIME_ZONE" json:"time_zone" yaml:"time_zone" validate:"timezone"`
}

// Location resolves TimeZone, falling back to UTC+8 when the zone database is unavailable.
func (c CatalogConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.FixedZone("UTC+8", 8*60*60)
	}
	return loc
}

// GatewayConfig configures the HTTP bind settings for webhook and status endpoints.
type GatewayConfig struct {
	Host string `env:"MEDIARELAY_GATEWAY_HOST" json:"host" yaml:"host"`
	Port int    `env:"MEDIARELAY_GATEWAY_PORT" json:"port" yaml:"port" validate:"gte=0,lte=65535"`

	// ShutdownTimeoutSeconds bounds how long in-flight updates may finish after a stop signal.
	ShutdownTimeoutSeconds int `env:"MEDIARELAY_GATEWAY_SHUTDOWN_TIMEOUT_SECONDS" json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" validate:"gte=0"`
}

func (c GatewayConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoadConfig resolves the config file, unmarshals it, and applies defaults, environment overrides and validation.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(configPath)
}

// LoadConfigFile loads one explicit config file.
func LoadConfigFile(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and cross-section requirements.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Store.Backend {
	case BackendDynamoDB:
		if strings.TrimSpace(cfg.Store.DynamoDB.Table) == "" {
			return errors.New("invalid config: store.dynamodb.table is required for the dynamodb backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(cfg.Store.Postgres.DSN) == "" {
			return errors.New("invalid config: store.postgres.dsn is required for the postgres backend")
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = ModePolling
	}
	if cfg.Telegram.WebhookPath == "" {
		cfg.Telegram.WebhookPath = defaultWebhookPath
	}
	if cfg.Storage.RequestTimeoutSeconds == 0 {
		cfg.Storage.RequestTimeoutSeconds = defaultRequestTimeoutSecs
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	if cfg.Store.TTLSeconds == 0 {
		cfg.Store.TTLSeconds = defaultTTLSeconds
	}
	if cfg.Batch.JitterMinMillis == 0 && cfg.Batch.JitterMaxMillis == 0 {
		cfg.Batch.JitterMinMillis = defaultJitterMinMillis
		cfg.Batch.JitterMaxMillis = defaultJitterMaxMillis
	}
	if cfg.Batch.MaxParallel == 0 {
		cfg.Batch.MaxParallel = defaultMaxParallel
	}
	if strings.TrimSpace(cfg.Catalog.Channels) == "" {
		cfg.Catalog.Channels = defaultChannelList
	}
	if cfg.Catalog.PageSize == 0 {
		cfg.Catalog.PageSize = defaultPageSize
	}
	if cfg.Catalog.TimeZone == "" {
		cfg.Catalog.TimeZone = defaultTimeZone
	}
	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = defaultGatewayHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = defaultGatewayPort
	}
	if cfg.Gateway.ShutdownTimeoutSeconds == 0 {
		cfg.Gateway.ShutdownTimeoutSeconds = defaultShutdownSeconds
	}
}

// applyEnvOverrides injects the unprefixed Telegram variables on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Telegram.AllowFrom = ParseCSV(rawAllowFrom)
	}
}

// ParseCSV splits comma-separated values and returns a trimmed compact slice.
func ParseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is MEDIARELAY_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config file not found (checked %s)", strings.Join(candidates, ", "))
}
