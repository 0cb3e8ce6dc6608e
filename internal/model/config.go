package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig points the client at the REST API and the realtime endpoint.
type ServerConfig struct {
	// APIURL is the root of the REST API (paths start with /api).
	APIURL string `mapstructure:"api_url" yaml:"api_url"`

	// WSURL is the websocket endpoint for realtime events.
	WSURL string `mapstructure:"ws_url" yaml:"ws_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SessionConfig controls session persistence and expiry.
type SessionConfig struct {
	// Vault selects where the session is persisted: "keyring" or "sqlite".
	Vault string `mapstructure:"vault" yaml:"vault"`

	// AbsoluteTTL is the maximum session age since login.
	AbsoluteTTL time.Duration `mapstructure:"absolute_ttl" yaml:"absolute_ttl"`

	// InactivityTTL is the maximum time since the last user interaction.
	InactivityTTL time.Duration `mapstructure:"inactivity_ttl" yaml:"inactivity_ttl"`

	// CheckInterval is how often the timeout watchdog runs.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// NotificationConfig controls the notification feed.
type NotificationConfig struct {
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
	MaxLive  int `mapstructure:"max_live" yaml:"max_live"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File is where logs go while the TUI owns the terminal. Empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// DataConfig locates local persistent state.
type DataConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server        ServerConfig       `mapstructure:"server" yaml:"server"`
	Session       SessionConfig      `mapstructure:"session" yaml:"session"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications"`
	Display       DisplayConfig      `mapstructure:"display" yaml:"display"`
	Log           LogConfig          `mapstructure:"log" yaml:"log"`
	Data          DataConfig         `mapstructure:"data" yaml:"data"`
}

// Session vault backends.
const (
	VaultKeyring = "keyring"
	VaultSQLite  = "sqlite"
)

// configDir returns ~/.config/taskflow, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskflow")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskflow/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			APIURL:     "http://localhost:3000",
			WSURL:      "ws://localhost:3000/ws",
			TimeoutSec: 30,
		},
		Session: SessionConfig{
			Vault:         VaultKeyring,
			AbsoluteTTL:   24 * time.Hour,
			InactivityTTL: 7 * time.Hour,
			CheckInterval: time.Minute,
		},
		Notifications: NotificationConfig{
			PageSize: 20,
			MaxLive:  20,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(configDir(), "taskflow.log"),
		},
		Data: DataConfig{
			DBPath: filepath.Join(configDir(), "taskflow.db"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("server.api_url", d.Server.APIURL)
	v.SetDefault("server.ws_url", d.Server.WSURL)
	v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	v.SetDefault("session.vault", d.Session.Vault)
	v.SetDefault("session.absolute_ttl", d.Session.AbsoluteTTL)
	v.SetDefault("session.inactivity_ttl", d.Session.InactivityTTL)
	v.SetDefault("session.check_interval", d.Session.CheckInterval)
	v.SetDefault("notifications.page_size", d.Notifications.PageSize)
	v.SetDefault("notifications.max_live", d.Notifications.MaxLive)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("data.db_path", d.Data.DBPath)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values may be overridden by TASKFLOW_* environment variables
// (e.g. TASKFLOW_SERVER_API_URL). If the file does not exist, defaults
// plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env still apply.
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later in obscure ways.
func (c *AppConfig) Validate() error {
	if c.Server.APIURL == "" {
		return fmt.Errorf("server.api_url must be set")
	}
	switch c.Session.Vault {
	case VaultKeyring, VaultSQLite:
	default:
		return fmt.Errorf("session.vault must be %q or %q, got %q",
			VaultKeyring, VaultSQLite, c.Session.Vault)
	}
	if c.Session.AbsoluteTTL <= 0 || c.Session.InactivityTTL <= 0 {
		return fmt.Errorf("session ttls must be positive")
	}
	if c.Notifications.PageSize <= 0 {
		c.Notifications.PageSize = 20
	}
	if c.Notifications.MaxLive <= 0 {
		c.Notifications.MaxLive = 20
	}
	if c.Session.CheckInterval <= 0 {
		c.Session.CheckInterval = time.Minute
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("session", map[string]any{
		"vault":          cfg.Session.Vault,
		"absolute_ttl":   cfg.Session.AbsoluteTTL.String(),
		"inactivity_ttl": cfg.Session.InactivityTTL.String(),
		"check_interval": cfg.Session.CheckInterval.String(),
	})
	v.Set("notifications", cfg.Notifications)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)
	v.Set("data", cfg.Data)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
