// Package config loads restsync settings from defaults, an optional config
// file and RESTSYNC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/restreviews/restsync/internal/engine"
	"github.com/restreviews/restsync/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. RESTSYNC_API_BASE_URL.
const EnvPrefix = "RESTSYNC"

// Config is the effective configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api" yaml:"api" toml:"api"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store" toml:"store"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync" toml:"sync"`
	Daemon DaemonConfig `mapstructure:"daemon" yaml:"daemon" toml:"daemon"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" toml:"log"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout"`
}

type StoreConfig struct {
	// Path of the cache database. "none" runs without a store.
	Path string `mapstructure:"path" yaml:"path" toml:"path"`
}

type SyncConfig struct {
	ReplayPolicy       string `mapstructure:"replay_policy" yaml:"replay_policy" toml:"replay_policy"`
	CoalesceFavorites  bool   `mapstructure:"coalesce_favorites" yaml:"coalesce_favorites" toml:"coalesce_favorites"`
	RefreshConcurrency int    `mapstructure:"refresh_concurrency" yaml:"refresh_concurrency" toml:"refresh_concurrency"`
}

type DaemonConfig struct {
	Port             int    `mapstructure:"port" yaml:"port" toml:"port"`
	ConnectivityFile string `mapstructure:"connectivity_file" yaml:"connectivity_file" toml:"connectivity_file"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" toml:"compress"`
	Quiet      bool   `mapstructure:"quiet" yaml:"quiet" toml:"quiet"`
}

// DefaultDir returns $HOME/.restsync, or .restsync when there is no home
// directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".restsync"
	}
	return filepath.Join(home, ".restsync")
}

func setDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultOptions()
	engineDefaults := engine.DefaultConfig()

	v.SetDefault("api.base_url", "http://localhost:1337/")
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("store.path", filepath.Join(DefaultDir(), "cache.db"))
	v.SetDefault("sync.replay_policy", string(engineDefaults.ReplayPolicy))
	v.SetDefault("sync.coalesce_favorites", engineDefaults.CoalesceFavorites)
	v.SetDefault("sync.refresh_concurrency", engineDefaults.RefreshConcurrency)
	v.SetDefault("daemon.port", 8090)
	v.SetDefault("daemon.connectivity_file", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age_days", logDefaults.MaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.quiet", false)
}

// Loader reads and re-reads configuration.
type Loader struct {
	v    *viper.Viper
	mu   sync.Mutex
	file string
}

// NewLoader prepares a loader. path names a config file; when empty,
// config.yaml (or .toml/.json) is looked up in DefaultDir and the current
// directory, and a missing file is not an error.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	return &Loader{v: v, file: path}
}

// Load reads the config file, if any, and returns the effective Config.
func (l *Loader) Load() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.decode()
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the new Config whenever the config file changes.
// Invalid configurations are passed to onErr and otherwise ignored.
func (l *Loader) Watch(fn func(Config), onErr func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()

		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (Config, error) {
	return NewLoader(path).Load()
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	if _, err := engine.ParseReplayPolicy(c.Sync.ReplayPolicy); err != nil {
		return err
	}
	if c.Sync.RefreshConcurrency < 0 {
		return fmt.Errorf("sync.refresh_concurrency must not be negative (got %d)", c.Sync.RefreshConcurrency)
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port out of range (got %d)", c.Daemon.Port)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	return nil
}

// EngineConfig maps the sync settings onto an engine.Config.
func (c Config) EngineConfig() engine.Config {
	policy, _ := engine.ParseReplayPolicy(c.Sync.ReplayPolicy)
	return engine.Config{
		ReplayPolicy:       policy,
		CoalesceFavorites:  c.Sync.CoalesceFavorites,
		RefreshConcurrency: c.Sync.RefreshConcurrency,
	}
}

// LogOptions maps the log settings onto logging.Options.
func (c Config) LogOptions() logging.Options {
	return logging.Options{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		Quiet:      c.Log.Quiet,
	}
}
