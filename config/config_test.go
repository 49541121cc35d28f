package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fahmaliyi/volcred/credential"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
preserve_timestamps: false
header_wipe_passes: 7
default_kdf: Argon2id
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.PreserveTimestamps || cfg.HeaderWipePasses != 7 || cfg.DefaultKdf != "Argon2id" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.ClipboardClearSeconds != 30 {
		t.Errorf("unset keys should keep defaults: %+v", cfg)
	}

	req, err := credential.NewChangeRequest(credential.ChangeKeyfiles, "/tmp/v")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Apply(req)
	if req.PreserveTimestamps || req.WipePasses != 7 {
		t.Errorf("req = %+v", req)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":    "header_wipe_passes: [",
		"wipe passes": "header_wipe_passes: -1",
		"unknown kdf": "default_kdf: HMAC-MD5",
		"clipboard":   "clipboard_clear_seconds: -5",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
