// Package config loads the server configuration.
//
// SOURCES, LOWEST PRIORITY FIRST:
//  1. Default() values
//  2. an optional YAML file (--config), with ${VAR} placeholders replaced
//     from the environment
//  3. environment variables (PORT, JWT_SECRET, ...); a .env file, if
//     present, is loaded into the environment first and never overrides
//     variables that are already set
//  4. command-line flags, applied by cmd/server after Load
//
// Validate runs last, so the server never starts on a half-valid config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Config is the root of the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address, e.g. ":3000".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects and locates the document store.
//
// For mongo, URI is a connection string ("mongodb://localhost:27017") and
// Database the database name. For sqlite, URI is a file path or ":memory:".
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"` // 0 = tokens live until logout
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// LogConfig holds logging settings. File empty means stdout.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug|info|warn|error
	Format     string `yaml:"format"` // text|json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:   DriverMongo,
			URI:      "mongodb://localhost:27017",
			Database: "CardsApp",
		},
		Auth: AuthConfig{
			BcryptCost: 12,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the optional .env file at envFile and the environment.
// It does not call Validate: flags may still change the result.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ExpandEnv replaces ${VAR} with the value of VAR. Unset variables are left
// as they are, so Validate can name them.
func ExpandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return m
	})
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("HOST"); ok {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT must be a number, got %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("STORE_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("STORE_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = ttl
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	return nil
}

// Validate reports the first setting that would keep the server from
// running correctly.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("config: server.shutdown_timeout must be positive")
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.URI == "" || c.Store.Database == "" {
			return errors.New("config: store.uri and store.database are required for mongo")
		}
	case DriverSQLite:
		if c.Store.URI == "" {
			return errors.New("config: store.uri (a file path or :memory:) is required for sqlite")
		}
	default:
		return fmt.Errorf("config: store.driver must be %s|%s, got %q", DriverMongo, DriverSQLite, c.Store.Driver)
	}

	secret := strings.TrimSpace(c.Auth.Secret)
	if secret == "" {
		return errors.New("config: auth.secret is required (set JWT_SECRET)")
	}
	if placeholder.MatchString(secret) {
		return fmt.Errorf("config: auth.secret has an unset variable: %q", secret)
	}
	if len(secret) < 16 {
		return fmt.Errorf("config: auth.secret is too short (%d chars, need 16)", len(secret))
	}
	if c.Auth.TokenTTL < 0 {
		return errors.New("config: auth.token_ttl must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug|info|warn|error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text|json, got %q", c.Log.Format)
	}

	return nil
}
