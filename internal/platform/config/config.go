package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calendar-1m/project/internal/platform/env"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type StoreConfig struct {
	// Backend is one of memory, postgres or firestore.
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	// Collection is the Firestore root collection for per-user calendars.
	Collection string `yaml:"collection"`
}

// FirebaseConfig mirrors the web client settings. Credentials are never
// compiled in; they come from this file or the environment.
type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	APIKey          string `yaml:"api_key"`
	AuthDomain      string `yaml:"auth_domain"`
	StorageBucket   string `yaml:"storage_bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

type NATSConfig struct {
	// URL enables cross-instance fan-out when set.
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type NotificationsConfig struct {
	DisplayTimeout time.Duration `yaml:"display_timeout"`
}

type RemindersConfig struct {
	// Refresh is a cron spec for periodic re-evaluation, e.g. "@every 1m".
	Refresh     string `yaml:"refresh"`
	SkipStarted bool   `yaml:"skip_started"`
}

type ValidationConfig struct {
	RejectPastDates bool `yaml:"reject_past_dates"`
}

type Config struct {
	Listen          string        `yaml:"listen"`
	UIOrigin        string        `yaml:"ui_origin"`
	Timezone        string        `yaml:"timezone"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Store         StoreConfig         `yaml:"store"`
	Firebase      FirebaseConfig      `yaml:"firebase"`
	NATS          NATSConfig          `yaml:"nats"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Reminders     RemindersConfig     `yaml:"reminders"`
	Validation    ValidationConfig    `yaml:"validation"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:          env.DefaultListenAddr,
		UIOrigin:        "http://localhost:8080",
		Timezone:        "UTC",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Store: StoreConfig{
			Backend:    BackendMemory,
			Collection: "calendars",
		},
		NATS: NATSConfig{
			ConnectTimeout: 20 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:  "dev-insecure-change-me",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Notifications: NotificationsConfig{
			DisplayTimeout: 4 * time.Second,
		},
		Reminders: RemindersConfig{
			Refresh: "@every 1m",
		},
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.Collection == "" {
		c.Store.Collection = d.Store.Collection
	}
	if c.NATS.ConnectTimeout <= 0 {
		c.NATS.ConnectTimeout = d.NATS.ConnectTimeout
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = d.Auth.JWTSecret
	}
	if c.Auth.AccessTTL <= 0 {
		c.Auth.AccessTTL = d.Auth.AccessTTL
	}
	if c.Auth.RefreshTTL <= 0 {
		c.Auth.RefreshTTL = d.Auth.RefreshTTL
	}
	if c.Notifications.DisplayTimeout <= 0 {
		c.Notifications.DisplayTimeout = d.Notifications.DisplayTimeout
	}
	if c.Reminders.Refresh == "" {
		c.Reminders.Refresh = d.Reminders.Refresh
	}
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = env.String("LISTEN_ADDR", c.Listen)
	c.UIOrigin = env.String("UI_ORIGIN", c.UIOrigin)
	c.Timezone = env.String("CALENDAR_TIMEZONE", c.Timezone)
	c.LogLevel = env.String("LOG_LEVEL", c.LogLevel)
	c.ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.Store.Backend = env.String("STORE_BACKEND", c.Store.Backend)
	c.Store.DatabaseURL = env.String("DATABASE_URL", c.Store.DatabaseURL)
	c.Store.Collection = env.String("FIRESTORE_COLLECTION", c.Store.Collection)

	c.Firebase.ProjectID = env.String("FIREBASE_PROJECT_ID", c.Firebase.ProjectID)
	c.Firebase.APIKey = env.String("FIREBASE_API_KEY", c.Firebase.APIKey)
	c.Firebase.AuthDomain = env.String("FIREBASE_AUTH_DOMAIN", c.Firebase.AuthDomain)
	c.Firebase.StorageBucket = env.String("FIREBASE_STORAGE_BUCKET", c.Firebase.StorageBucket)
	c.Firebase.CredentialsFile = env.String("GOOGLE_APPLICATION_CREDENTIALS", c.Firebase.CredentialsFile)

	c.NATS.URL = env.String("NATS_URL", c.NATS.URL)
	c.NATS.ConnectTimeout = env.Duration("NATS_CONNECT_TIMEOUT", c.NATS.ConnectTimeout)

	c.Auth.JWTSecret = env.String("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTTL = env.Duration("ACCESS_TOKEN_TTL", c.Auth.AccessTTL)
	c.Auth.RefreshTTL = env.Duration("REFRESH_TOKEN_TTL", c.Auth.RefreshTTL)

	c.Notifications.DisplayTimeout = env.Duration("NOTIFICATION_TIMEOUT", c.Notifications.DisplayTimeout)
	c.Reminders.Refresh = env.String("REMINDER_REFRESH", c.Reminders.Refresh)
	c.Reminders.SkipStarted = env.Bool("REMINDERS_SKIP_STARTED", c.Reminders.SkipStarted)
	c.Validation.RejectPastDates = env.Bool("REJECT_PAST_DATES", c.Validation.RejectPastDates)

	c.Normalize()
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres backend")
		}
	case BackendFirestore:
		if c.Firebase.ProjectID == "" && c.Firebase.CredentialsFile == "" {
			return errors.New("firebase.project_id or firebase.credentials_file is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Reminders.Refresh); err != nil {
		return fmt.Errorf("reminders.refresh: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML file at path and applies environment overrides. A
// missing file is created with defaults (0600). An empty path skips the
// file entirely.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()
	return &cfg, nil
}

// Save writes cfg atomically through a temp file in the same directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calendar-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
