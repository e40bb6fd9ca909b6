package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/calendar-service/internal/auth"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "CALENDAR_"

// FileEnvKey names the optional YAML file holding base values.
const FileEnvKey = EnvPrefix + "CONFIG_FILE"

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Config captures configuration values for the calendar service.
type Config struct {
	HTTPPort      int    `yaml:"http_port"`
	Storage       string `yaml:"storage"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	JWTSecret      string        `yaml:"jwt_secret"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	GoogleClientID string        `yaml:"google_client_id"`
	AdminEmails    []string      `yaml:"admin_emails"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	RedisAddr string `yaml:"redis_addr"`
	// RateLimit is the number of requests a caller may make per minute. Zero disables limiting.
	RateLimit int `yaml:"rate_limit"`

	RecurrenceHorizonDays int    `yaml:"recurrence_horizon_days"`
	SessionPurgeSchedule  string `yaml:"session_purge_schedule"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:              8080,
		Storage:               StorageSQLite,
		SQLitePath:            "calendar.db",
		MongoDatabase:         "calendar",
		SessionTTL:            7 * 24 * time.Hour,
		AllowedOrigins:        []string{"http://localhost:3000"},
		RateLimit:             300,
		RecurrenceHorizonDays: 90,
		SessionPurgeSchedule:  "0 * * * *",
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Error lists every missing and invalid setting found while loading.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Load reads the optional YAML file named by CALENDAR_CONFIG_FILE and then
// applies CALENDAR_* environment variables on top of it.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnvKey)); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}
	return apply(cfg, os.LookupEnv)
}

// LoadFile reads a YAML file over the defaults without consulting the
// environment or checking required keys.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func apply(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	problems := &Error{}
	get := func(key string) (string, bool) {
		value, ok := lookup(EnvPrefix + key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	invalid := func(key string) {
		problems.Invalid = append(problems.Invalid, EnvPrefix+key)
	}

	if value, ok := get("HTTP_PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid("HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if value, ok := get("STORAGE"); ok {
		cfg.Storage = strings.ToLower(value)
	}
	if value, ok := get("SQLITE_PATH"); ok {
		cfg.SQLitePath = value
	}
	if value, ok := get("MONGO_URI"); ok {
		cfg.MongoURI = value
	}
	if value, ok := get("MONGO_DATABASE"); ok {
		cfg.MongoDatabase = value
	}

	if value, ok := get("JWT_SECRET"); ok {
		cfg.JWTSecret = value
	}
	if value, ok := get("SESSION_TTL"); ok {
		ttl, err := time.ParseDuration(value)
		if err != nil || ttl <= 0 {
			invalid("SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if value, ok := get("GOOGLE_CLIENT_ID"); ok {
		cfg.GoogleClientID = value
	}
	if value, ok := get("ADMIN_EMAILS"); ok {
		cfg.AdminEmails = splitList(value)
	}
	if value, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(value)
	}

	if value, ok := get("REDIS_ADDR"); ok {
		cfg.RedisAddr = value
	}
	if value, ok := get("RATE_LIMIT"); ok {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			invalid("RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}
	if value, ok := get("RECURRENCE_HORIZON"); ok {
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			invalid("RECURRENCE_HORIZON")
		} else {
			cfg.RecurrenceHorizonDays = days
		}
	}
	if value, ok := get("SESSION_PURGE_SCHEDULE"); ok {
		cfg.SessionPurgeSchedule = value
	}
	if value, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = value
	}
	if value, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = strings.ToLower(value)
	}

	cfg.validate(problems)
	if len(problems.Missing) > 0 || len(problems.Invalid) > 0 {
		return Config{}, problems
	}
	return cfg, nil
}

func (c *Config) validate(problems *Error) {
	if c.JWTSecret == "" {
		problems.Missing = append(problems.Missing, EnvPrefix+"JWT_SECRET")
	} else if len(c.JWTSecret) < auth.MinSecretLength {
		problems.Invalid = append(problems.Invalid, EnvPrefix+"JWT_SECRET")
	}
	if c.GoogleClientID == "" {
		problems.Missing = append(problems.Missing, EnvPrefix+"GOOGLE_CLIENT_ID")
	}

	switch c.Storage {
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			problems.Missing = append(problems.Missing, EnvPrefix+"SQLITE_PATH")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			problems.Missing = append(problems.Missing, EnvPrefix+"MONGO_URI")
		}
		if c.MongoDatabase == "" {
			problems.Missing = append(problems.Missing, EnvPrefix+"MONGO_DATABASE")
		}
	case StorageMemory:
	default:
		problems.Invalid = append(problems.Invalid, EnvPrefix+"STORAGE")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		problems.Invalid = append(problems.Invalid, EnvPrefix+"LOG_FORMAT")
	}
}

// Validate reports missing and invalid values of an already assembled Config.
func (c Config) Validate() error {
	problems := &Error{}
	c.validate(problems)
	if len(problems.Missing) > 0 || len(problems.Invalid) > 0 {
		return problems
	}
	return nil
}

// IsConfigError reports whether err came from configuration validation.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
