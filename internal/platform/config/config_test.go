package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "LOG_LEVEL", "STORE_BACKEND", "DATABASE_URL", "NATS_URL",
		"NOTIFICATION_TIMEOUT", "REMINDER_REFRESH", "REJECT_PAST_DATES", "CALENDAR_TIMEZONE",
		"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "calendar.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Notifications.DisplayTimeout != 4*time.Second {
		t.Fatalf("unexpected default timeout: %v", cfg.Notifications.DisplayTimeout)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if again.Reminders.Refresh != "@every 1m" || again.Store.Backend != BackendMemory {
		t.Fatalf("unexpected reloaded config: %+v", again)
	}
}

func TestLoad_PartialFileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	body := strings.Join([]string{
		"listen: 127.0.0.1:9000",
		"store:",
		"  backend: Postgres",
		"  database_url: postgres://u:p@db/cal",
		"notifications:",
		"  display_timeout: 3s",
		"validation:",
		"  reject_past_dates: true",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("NOTIFICATION_TIMEOUT", "6s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" || cfg.Store.Backend != BackendPostgres {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Notifications.DisplayTimeout != 6*time.Second {
		t.Fatalf("env override not applied: %v", cfg.Notifications.DisplayTimeout)
	}
	if !cfg.Validation.RejectPastDates {
		t.Fatalf("reject_past_dates not read")
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Fatalf("missing section not defaulted: %v", cfg.Auth.AccessTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, false},
		{"firestore without project", func(c *Config) { c.Store.Backend = BackendFirestore }, false},
		{"firestore with project", func(c *Config) {
			c.Store.Backend = BackendFirestore
			c.Firebase.ProjectID = "demo"
		}, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, false},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"bad cron", func(c *Config) { c.Reminders.Refresh = "every minute" }, false},
		{"five field cron", func(c *Config) { c.Reminders.Refresh = "*/5 * * * *" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestSave_RejectsEmpty(t *testing.T) {
	if err := Save("", DefaultConfig()); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
