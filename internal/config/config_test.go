package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("DatabaseType = %q, want sqlite", cfg.DatabaseType)
	}
	if cfg.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts = %d, want 5", cfg.MaxLoginAttempts)
	}
	if cfg.RememberDuration != 30*24*time.Hour {
		t.Errorf("RememberDuration = %v, want 720h", cfg.RememberDuration)
	}
	if cfg.AppBaseURL == "" || cfg.AuthSecret == "" {
		t.Error("AppBaseURL and AuthSecret must have defaults")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_URL", "postgres://localhost/app")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("REMEMBER_DURATION", "24h")
	t.Setenv("DEBUG", "1")

	cfg := Load()

	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("DatabaseType = %q, want postgres", cfg.DatabaseType)
	}
	if cfg.DatabaseURL != "postgres://localhost/app" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts = %d, want 3", cfg.MaxLoginAttempts)
	}
	if cfg.RememberDuration != 24*time.Hour {
		t.Errorf("RememberDuration = %v, want 24h", cfg.RememberDuration)
	}
	if !cfg.Debug {
		t.Error("Debug should be enabled")
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "lots")
	t.Setenv("REMEMBER_DURATION", "soon")

	cfg := Load()

	if cfg.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts = %d, want default 5", cfg.MaxLoginAttempts)
	}
	if cfg.RememberDuration != 30*24*time.Hour {
		t.Errorf("RememberDuration = %v, want default 720h", cfg.RememberDuration)
	}
}
