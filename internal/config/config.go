// Package config loads the server configuration from defaults, an optional
// YAML file, CREDAUTH_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcoot/credauth/internal/api"
	"github.com/mcoot/credauth/internal/api/middleware"
	"github.com/mcoot/credauth/internal/factory"
	"github.com/mcoot/credauth/internal/services/password"
	"github.com/mcoot/credauth/internal/services/registration"
	"github.com/mcoot/credauth/internal/services/session"
	redisstorage "github.com/mcoot/credauth/internal/storage/redis"
	"github.com/mcoot/credauth/internal/storage/sqldb"
)

// Environments
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// EnvPrefix prefixes every environment variable, e.g. CREDAUTH_PASSWORD_PEPPER
const EnvPrefix = "credauth"

// FileName is the config file searched for when none is given
const FileName = "credauth"

// Config is the complete server configuration. It is loaded once at start.
type Config struct {
	Env      string              `mapstructure:"env"`
	Log      LogConfig           `mapstructure:"log"`
	Server   ServerConfig        `mapstructure:"server"`
	Storage  StorageConfig       `mapstructure:"storage"`
	Redis    redisstorage.Config `mapstructure:"redis"`
	Database sqldb.Config        `mapstructure:"database"`
	Password PasswordConfig      `mapstructure:"password"`
	Session  SessionConfig       `mapstructure:"session"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig selects the account and session backends
type StorageConfig struct {
	Accounts string `mapstructure:"accounts"`
	Sessions string `mapstructure:"sessions"`
}

// PasswordConfig configures hashing and the strength policy
type PasswordConfig struct {
	Pepper   string              `mapstructure:"pepper"`
	PoolSize int                 `mapstructure:"pool_size"`
	Hash     password.Params     `mapstructure:"hash"`
	Policy   registration.Policy `mapstructure:"policy"`
}

// SessionConfig configures session lifetime and the cookie
type SessionConfig struct {
	session.Config `mapstructure:",squash"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
}

// Defaults returns every key with its default value. Durations are strings
// so a written config file stays readable.
func Defaults() map[string]any {
	hash := password.DefaultParams()
	policy := registration.DefaultPolicy()
	redisCfg := redisstorage.DefaultConfig()
	dbCfg := sqldb.DefaultConfig()
	sessCfg := session.DefaultConfig()
	server := api.DefaultServerConfig()

	return map[string]any{
		"env": EnvProd,

		"log.level":  "info",
		"log.format": "json",

		"server.host":             server.Host,
		"server.port":             server.Port,
		"server.read_timeout":     server.ReadTimeout.String(),
		"server.write_timeout":    server.WriteTimeout.String(),
		"server.shutdown_timeout": server.ShutdownTimeout.String(),
		"server.request_timeout":  api.DefaultRequestTimeout.String(),

		"storage.accounts": factory.StorageTypeMemory,
		"storage.sessions": factory.StorageTypeMemory,

		"redis.url":            redisCfg.URL,
		"redis.pool_size":      redisCfg.PoolSize,
		"redis.min_idle_conns": redisCfg.MinIdleConns,
		"redis.dial_timeout":   redisCfg.DialTimeout.String(),

		"database.driver":       dbCfg.Driver,
		"database.dsn":          dbCfg.DSN,
		"database.auto_migrate": dbCfg.AutoMigrate,

		"password.pepper":                    "",
		"password.pool_size":                 0,
		"password.hash.memory":               hash.Memory,
		"password.hash.time":                 hash.Time,
		"password.hash.threads":              hash.Threads,
		"password.hash.salt_len":             hash.SaltLen,
		"password.hash.key_len":              hash.KeyLen,
		"password.policy.require_mixed_case": policy.RequireMixedCase,
		"password.policy.require_digit":      policy.RequireDigit,
		"password.policy.require_symbol":     policy.RequireSymbol,

		"session.ttl":            sessCfg.TTL.String(),
		"session.idle_timeout":   sessCfg.IdleTimeout.String(),
		"session.sweep_interval": (5 * time.Minute).String(),
		"session.cookie_name":    middleware.DefaultCookieName,
		"session.cookie_secure":  true,
	}
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"env":          "env",
	"host":         "server.host",
	"port":         "server.port",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"accounts":     "storage.accounts",
	"sessions":     "storage.sessions",
	"database-dsn": "database.dsn",
	"database":     "database.driver",
	"redis-url":    "redis.url",
}

// FlagKey returns the config key a flag overrides
func FlagKey(flag string) (string, bool) {
	key, ok := flagKeys[flag]
	return key, ok
}

// Load builds the configuration. configFile, when set, must exist; otherwise
// credauth.yaml is looked up in the working directory, the user config
// directory and /etc/credauth. cmd may be nil.
func Load(cmd *cobra.Command, configFile string) (Config, error) {
	var c Config
	v := viper.New()

	// 1. Set defaults
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	// 2. Config file
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "credauth"))
		}
		v.AddConfigPath("/etc/credauth")
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags explicitly set on the command line
	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, err
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	c.Storage.Accounts = strings.ToLower(c.Storage.Accounts)
	c.Storage.Sessions = strings.ToLower(c.Storage.Sessions)

	return c, nil
}

// IsDev reports whether the development environment is selected
func (c Config) IsDev() bool {
	return c.Env == EnvDev
}

// Validate rejects configurations the server cannot run with
func (c Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("env must be %q or %q, got %q", EnvDev, EnvProd, c.Env))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	usesRedis := false
	switch c.Storage.Accounts {
	case factory.StorageTypeMemory:
	case factory.StorageTypeRedis:
		usesRedis = true
	case factory.StorageTypeSQL:
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("storage.accounts must be memory, redis or sql, got %q", c.Storage.Accounts))
	}
	switch c.Storage.Sessions {
	case factory.StorageTypeMemory:
	case factory.StorageTypeRedis:
		usesRedis = true
	default:
		errs = append(errs, fmt.Errorf("storage.sessions must be memory or redis, got %q", c.Storage.Sessions))
	}
	if usesRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when a redis backend is selected"))
	}

	if c.Password.Pepper == "" && !c.IsDev() {
		errs = append(errs, errors.New("password.pepper is required outside the dev environment"))
	}
	if err := c.Password.Hash.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Password.PoolSize < 0 {
		errs = append(errs, errors.New("password.pool_size cannot be negative"))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, errors.New("session.idle_timeout cannot be negative"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}

	return errors.Join(errs...)
}

// Logger builds the slog logger described by c.Log
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// FactoryConfig converts c into the application factory's configuration
func (c Config) FactoryConfig(logger *slog.Logger) factory.Config {
	redisCfg := c.Redis
	dbCfg := c.Database
	policy := c.Password.Policy

	return factory.Config{
		Logger:         logger,
		AccountStorage: c.Storage.Accounts,
		SessionStorage: c.Storage.Sessions,
		RedisConfig:    &redisCfg,
		SQLConfig:      &dbCfg,
		Pepper:         c.Password.Pepper,
		HashParams:     c.Password.Hash,
		PoolSize:       c.Password.PoolSize,
		SessionConfig:  c.Session.Config,
		Policy:         &policy,
	}
}

// APIServerConfig returns the HTTP listener settings
func (c Config) APIServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
	}
}

// Cookies returns the session cookie settings
func (c Config) Cookies() middleware.CookieConfig {
	return middleware.CookieConfig{
		Name:   c.Session.CookieName,
		Secure: c.Session.CookieSecure,
	}
}

// WriteDefaultFile writes the default configuration as YAML to path.
// The file may later hold the pepper, so it is created 0600.
func WriteDefaultFile(path string) error {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create config directory %s: %w", dir, err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}
