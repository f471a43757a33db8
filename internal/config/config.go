// Package config loads prodmanager settings. Environment variables override
// the YAML file, which overrides the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, so plugins.dir is
// read from PRODMANAGER_PLUGINS_DIR.
const EnvPrefix = "PRODMANAGER"

// Config is the typed view of the settings the host itself uses.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// MaxUploadMB caps plugin archive uploads.
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
	// UploadsPerHour limits archive uploads per client IP. Zero disables it.
	UploadsPerHour int `mapstructure:"uploads_per_hour"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type PluginsConfig struct {
	Dir                string `mapstructure:"dir"`
	TmpDir             string `mapstructure:"tmp_dir"`
	HotReload          bool   `mapstructure:"hot_reload"`
	RediscoverSchedule string `mapstructure:"rediscover_schedule"`
	SharedObjects      bool   `mapstructure:"shared_objects"`
	LogBufferSize      int    `mapstructure:"log_buffer_size"`
	// Hex-encoded ed25519 public keys. When set, .so entry files must be signed.
	TrustedKeys []string `mapstructure:"trusted_keys"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "prodmanager")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_upload_mb", 32)
	v.SetDefault("http.uploads_per_hour", 30)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("plugins.dir", "plugins")
	v.SetDefault("plugins.tmp_dir", "tmp")
	v.SetDefault("plugins.hot_reload", false)
	v.SetDefault("plugins.rediscover_schedule", "")
	v.SetDefault("plugins.shared_objects", false)
	v.SetDefault("plugins.log_buffer_size", 1000)
	v.SetDefault("plugins.trusted_keys", []string{})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding but
// no file. Load adds the file.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (YAML) when it is not empty. A missing file is an error
// only when path was given explicitly; otherwise ./prodmanager.yaml is used
// if present.
func Load(path string) (*Config, *viper.Viper, error) {
	v := New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("prodmanager")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode builds a Config from v and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.Plugins.Dir == "" {
		errs = append(errs, errors.New("plugins.dir must not be empty"))
	}
	if c.Plugins.TmpDir == "" {
		errs = append(errs, errors.New("plugins.tmp_dir must not be empty"))
	}
	if c.HTTP.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("http.max_upload_mb must be positive"))
	}
	return errors.Join(errs...)
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
