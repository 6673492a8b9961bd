package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DICEROBOT_DATABASE", "DICEROBOT_LOG_DIR", "DICEROBOT_LOG_LEVEL", "DICEROBOT_HOST", "DICEROBOT_PORT", "DICEROBOT_DEBUG"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadEnv("")
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Database != "dicerobot.db" || cfg.LogDir != "logs" || cfg.LogLevel != "INFO" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Addr() != "0.0.0.0:9500" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
	if cfg.Debug {
		t.Fatal("Debug = true without DICEROBOT_DEBUG")
	}
}

func TestLoadEnv_DebugPresence(t *testing.T) {
	t.Setenv("DICEROBOT_DEBUG", "")

	cfg, err := LoadEnv("")
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if !cfg.Debug {
		t.Fatal("Debug = false, want true when DICEROBOT_DEBUG is set to empty")
	}
}

func TestLoadEnv_DotEnvFile(t *testing.T) {
	t.Setenv("DICEROBOT_PORT", "9600")
	os.Unsetenv("DICEROBOT_LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("DICEROBOT_LOG_LEVEL") })

	path := filepath.Join(t.TempDir(), ".env")
	content := "DICEROBOT_PORT=1234\nDICEROBOT_LOG_LEVEL=DEBUG\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.Port != 9600 {
		t.Fatalf("Port = %d, want 9600 (real env wins)", cfg.Port)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Fatalf("LogLevel = %q, want DEBUG from .env", cfg.LogLevel)
	}
}

func TestLoadEnv_MissingFileIgnored(t *testing.T) {
	if _, err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
}
