package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FOODALLOC_API_BASE_URL.
const EnvPrefix = "FOODALLOC_"

// Config is the operator console configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Auth          AuthConfig          `yaml:"auth"`
	Log           LogConfig           `yaml:"log"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Wizard        WizardConfig        `yaml:"wizard"`
}

type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// RealtimeConfig holds the websocket endpoint. ReconnectSeconds exists so
// tests and local setups can shorten the retry delay.
type RealtimeConfig struct {
	URL              string        `yaml:"url"`
	ReconnectSeconds int           `yaml:"reconnect_seconds"`
	ReconnectDelay   time.Duration `yaml:"-"`
}

// AuthConfig carries either a ready bearer token or credentials to log in with.
type AuthConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NotificationsConfig struct {
	DBPath string `yaml:"db_path"`
}

type DashboardConfig struct {
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

type WizardConfig struct {
	PageSize int `yaml:"page_size"`
}

// Load reads the configuration at path, applies environment overrides and
// fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"API_BASE_URL":          &cfg.API.BaseURL,
		"REALTIME_URL":          &cfg.Realtime.URL,
		"AUTH_TOKEN":            &cfg.Auth.Token,
		"AUTH_USERNAME":         &cfg.Auth.Username,
		"AUTH_PASSWORD":         &cfg.Auth.Password,
		"LOG_LEVEL":             &cfg.Log.Level,
		"LOG_FORMAT":            &cfg.Log.Format,
		"NOTIFICATIONS_DB_PATH": &cfg.Notifications.DBPath,
	}
	for key, dst := range strs {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"API_TIMEOUT_SECONDS":         &cfg.API.TimeoutSeconds,
		"REALTIME_RECONNECT_SECONDS":  &cfg.Realtime.ReconnectSeconds,
		"DASHBOARD_CACHE_TTL_SECONDS": &cfg.Dashboard.CacheTTLSeconds,
		"WIZARD_PAGE_SIZE":            &cfg.Wizard.PageSize,
	}
	for key, dst := range ints {
		v := getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8090"
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 15
	}
	c.API.Timeout = time.Duration(c.API.TimeoutSeconds) * time.Second

	if c.Realtime.URL == "" {
		c.Realtime.URL = "ws://localhost:8090/ws/allocation"
	}
	if c.Realtime.ReconnectSeconds <= 0 {
		c.Realtime.ReconnectSeconds = 10
	}
	c.Realtime.ReconnectDelay = time.Duration(c.Realtime.ReconnectSeconds) * time.Second

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Notifications.DBPath == "" {
		c.Notifications.DBPath = "foodalloc.db"
	}
	if c.Dashboard.CacheTTLSeconds <= 0 {
		c.Dashboard.CacheTTLSeconds = 30
	}
	c.Dashboard.CacheTTL = time.Duration(c.Dashboard.CacheTTLSeconds) * time.Second
	if c.Wizard.PageSize <= 0 {
		c.Wizard.PageSize = 10
	}
}
