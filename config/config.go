/*
config.go - Runtime configuration for the casebook server and CLI

PRECEDENCE (lowest to highest):
  1. Default()
  2. YAML file (--config)
  3. Environment (CASEBOOK_*)
  4. Command-line flags

EXAMPLE FILE:
  port: 8080
  store: sqlite
  sqlite_path: ./data/casebook.db
  log_format: json
  allowed_emails: [worker@agency.org]
  admin_emails: [lead@agency.org]
  running_low_weeks: 2
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CASEBOOK"

// Config holds all runtime configuration.
type Config struct {
	Port       int         `yaml:"port"`
	Store      string      `yaml:"store"` // memory, sqlite or redis
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`

	LogFormat string `yaml:"log_format"` // "text" or "json"
	LogLevel  string `yaml:"log_level"`

	// AllowedEmails may use the API. Empty allows everyone.
	AllowedEmails []string `yaml:"allowed_emails"`
	// AdminEmails may also delete profiles.
	AdminEmails []string `yaml:"admin_emails"`
	CORSOrigins []string `yaml:"cors_origins"`

	RunningLowWeeks int `yaml:"running_low_weeks"`

	// Scenarios enables the demo scenario endpoints, which wipe the store.
	Scenarios bool `yaml:"scenarios"`
}

// RedisConfig holds the Redis store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:       8080,
		Store:      StoreSQLite,
		SQLitePath: "casebook.db",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "casebook",
		},
		LogFormat:       "text",
		LogLevel:        "info",
		CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		RunningLowWeeks: 2,
	}
}

// LoadFromFile reads a YAML config file and merges its values into Config.
// Keys absent from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overrides values from <prefix>_* environment variables. A
// numeric variable that does not parse is an error.
func (c *Config) LoadFromEnv(prefix string) error {
	if err := envInt(prefix+"_PORT", &c.Port); err != nil {
		return err
	}
	if store := os.Getenv(prefix + "_STORE"); store != "" {
		c.Store = store
	}
	if path := os.Getenv(prefix + "_SQLITE_PATH"); path != "" {
		c.SQLitePath = path
	}
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if err := envInt(prefix+"_REDIS_DB", &c.Redis.DB); err != nil {
		return err
	}
	if p := os.Getenv(prefix + "_REDIS_PREFIX"); p != "" {
		c.Redis.Prefix = p
	}
	if format := os.Getenv(prefix + "_LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}
	if level := os.Getenv(prefix + "_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if emails := os.Getenv(prefix + "_ALLOWED_EMAILS"); emails != "" {
		c.AllowedEmails = splitList(emails)
	}
	if emails := os.Getenv(prefix + "_ADMIN_EMAILS"); emails != "" {
		c.AdminEmails = splitList(emails)
	}
	if origins := os.Getenv(prefix + "_CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
	if err := envInt(prefix+"_RUNNING_LOW_WEEKS", &c.RunningLowWeeks); err != nil {
		return err
	}
	if v := os.Getenv(prefix + "_SCENARIOS"); v != "" {
		c.Scenarios = v == "true" || v == "1"
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", name, v)
	}
	*dst = n
	return nil
}

// Validate checks field values and returns an error if the config is invalid.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite store needs a database path")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, sqlite or redis)", c.Store)
	}
	if c.Store == StoreRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis store needs an address")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (want text or json)", c.LogFormat)
	}
	if c.RunningLowWeeks <= 0 {
		return fmt.Errorf("running_low_weeks must be positive, got %d", c.RunningLowWeeks)
	}
	return nil
}

// IsAdmin reports whether email is configured as an admin.
func (c *Config) IsAdmin(email string) bool {
	return containsEmail(c.AdminEmails, email)
}

// IsAllowed reports whether email may use the API. An empty allow-list
// admits everyone; admins are always allowed.
func (c *Config) IsAllowed(email string) bool {
	if len(c.AllowedEmails) == 0 {
		return true
	}
	return containsEmail(c.AllowedEmails, email) || c.IsAdmin(email)
}

func containsEmail(list []string, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range list {
		if strings.ToLower(strings.TrimSpace(e)) == email {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
