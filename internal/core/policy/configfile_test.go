package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	contents := `
name: ops-bot
blockedReadPaths:
  - /etc/shadow
dangerousCommandPatterns:
  - "rm\\s+-rf"
allowedDomains:
  - example.com
requestsPerMinute: 30
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Name != "ops-bot" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if len(cfg.BlockedReadPaths) != 1 || cfg.BlockedReadPaths[0] != "/etc/shadow" {
		t.Fatalf("unexpected blocked read paths: %+v", cfg.BlockedReadPaths)
	}
	if cfg.RequestsPerMinute != 30 {
		t.Fatalf("unexpected requests per minute: %d", cfg.RequestsPerMinute)
	}
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	if _, err := LoadConfigFile("/nonexistent/policy.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
