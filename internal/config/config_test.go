package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != filepath.Join(dir, "tutorsync.db") {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %s, want 15m", cfg.SyncInterval)
	}
	if cfg.SyncDebounce != 2*time.Second {
		t.Errorf("SyncDebounce = %s, want 2s", cfg.SyncDebounce)
	}
	if err := cfg.ValidateForSync(); err == nil {
		t.Error("Empty config passed sync validation")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
remote:
  url: https://sync.example.com
  token: s3cret
tenant:
  id: tutor-42
sync:
  interval: 90s
log:
  file: /var/log/tutorsync.log
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RemoteURL != "https://sync.example.com" {
		t.Errorf("RemoteURL = %s", cfg.RemoteURL)
	}
	if cfg.RemoteToken != "s3cret" {
		t.Errorf("RemoteToken = %s", cfg.RemoteToken)
	}
	if cfg.TenantID != "tutor-42" {
		t.Errorf("TenantID = %s", cfg.TenantID)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("SyncInterval = %s, want 90s", cfg.SyncInterval)
	}
	if cfg.LogFile != "/var/log/tutorsync.log" {
		t.Errorf("LogFile = %s", cfg.LogFile)
	}
	if err := cfg.ValidateForSync(); err != nil {
		t.Errorf("ValidateForSync failed: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TUTORSYNC_TENANT_ID", "env-tenant")
	t.Setenv("TUTORSYNC_REMOTE_URL", "http://localhost:8787")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TenantID != "env-tenant" {
		t.Errorf("TenantID = %s, want env override", cfg.TenantID)
	}
	if cfg.RemoteURL != "http://localhost:8787" {
		t.Errorf("RemoteURL = %s, want env override", cfg.RemoteURL)
	}
}

func TestBadDuration(t *testing.T) {
	dir := t.TempDir()
	yaml := "sync:\n  interval: not-a-duration\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Bad duration did not fail Load")
	}
}
