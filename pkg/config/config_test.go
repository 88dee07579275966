package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, home, body string) string {
	t.Helper()
	configDir := filepath.Join(home, ".threadwriter")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if !cfg.RequireComposer() {
		t.Fatalf("cfg.RequireComposer() = false, want true")
	}
	if got := cfg.ObjectStoreScheme(); got != DefaultObjectStoreScheme {
		t.Fatalf("cfg.ObjectStoreScheme() = %q", got)
	}
	if got := cfg.RedisAddr(); got != "" {
		t.Fatalf("cfg.RedisAddr() = %q, want empty", got)
	}
	if got := cfg.RedisChannel(); got != DefaultRedisChannel {
		t.Fatalf("cfg.RedisChannel() = %q", got)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.LogFormat(); got != DefaultLogFormat {
		t.Fatalf("cfg.LogFormat() = %q", got)
	}
}

func TestLoad_ParsesSections(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `server:
  host: 0.0.0.0
  port: 9090
editor:
  require_composer: false
  object_store_scheme: gs
redis:
  addr: 127.0.0.1:6379
  channel: docs
log:
  level: debug
  format: json
models:
  file: /tmp/tw/models.json
`)

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q", got)
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d", got)
	}
	if cfg.RequireComposer() {
		t.Fatalf("cfg.RequireComposer() = true, want false")
	}
	if got := cfg.ObjectStoreScheme(); got != "gs" {
		t.Fatalf("cfg.ObjectStoreScheme() = %q", got)
	}
	if got := cfg.RedisAddr(); got != "127.0.0.1:6379" {
		t.Fatalf("cfg.RedisAddr() = %q", got)
	}
	if got := cfg.RedisChannel(); got != "docs" {
		t.Fatalf("cfg.RedisChannel() = %q", got)
	}
	if cfg.LogLevel() != "debug" || cfg.LogFormat() != "json" {
		t.Fatalf("log config = %q/%q", cfg.LogLevel(), cfg.LogFormat())
	}
	if got := cfg.ModelsFile(); got != "/tmp/tw/models.json" {
		t.Fatalf("cfg.ModelsFile() = %q", got)
	}
	if got := cfg.PresetsFile(); got != filepath.Join("/tmp/tw", "model_providers.json") {
		t.Fatalf("cfg.PresetsFile() = %q", got)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"empty host", "server:\n  host: \"  \"\n"},
		{"scheme with separator", "editor:\n  object_store_scheme: \"s3://\"\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			writeConfig(t, home, tt.body)
			if _, _, err := Load(); err == nil {
				t.Fatalf("Load() expected error for %s", tt.name)
			}
		})
	}
}
