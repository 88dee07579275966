package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.threadwriter/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8088
// editor:
//   require_composer: true
//   object_store_scheme: s3
// database:
//   path: /home/me/.threadwriter/documents.db
// redis:
//   addr: 127.0.0.1:6379
//   channel: threadwriter:stream
// log:
//   level: info
//   format: text
// models:
//   file: /home/me/.threadwriter/models.json
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.
// - An empty redis.addr disables the redis stream bridge.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Editor   EditorConfig   `yaml:"editor"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Models   ModelsConfig   `yaml:"models"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type EditorConfig struct {
	RequireComposer   *bool   `yaml:"require_composer"`
	ObjectStoreScheme *string `yaml:"object_store_scheme"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

type RedisConfig struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
	Channel  *string `yaml:"channel"`
}

// ModelsConfig locates the model catalog and the provider presets.
type ModelsConfig struct {
	File        *string `yaml:"file"`
	PresetsFile *string `yaml:"presets_file"`
}

type LogConfig struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8088
	DefaultObjectStoreScheme = "s3"
	DefaultRedisChannel      = "threadwriter:stream"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"

	configDirName = ".threadwriter"
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, configDirName)
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.threadwriter/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadFile(configFile)
	if err != nil {
		return nil, "", err
	}
	return cfg, configFile, nil
}

// LoadFile reads and validates a config file at an explicit path.
func LoadFile(configFile string) (*AppConfig, error) {
	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	if cfg.Server.Host != nil && strings.TrimSpace(*cfg.Server.Host) == "" {
		return nil, fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if cfg.Editor.ObjectStoreScheme != nil && strings.ContainsAny(*cfg.Editor.ObjectStoreScheme, ":/ ") {
		return nil, fmt.Errorf("invalid editor.object_store_scheme %q in %s", *cfg.Editor.ObjectStoreScheme, configFile)
	}

	return cfg, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Editor: EditorConfig{RequireComposer: ptr(true), ObjectStoreScheme: ptr(DefaultObjectStoreScheme)},
		Log:    LogConfig{Level: ptr(DefaultLogLevel), Format: ptr(DefaultLogFormat)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// RequireComposer reports whether every thread must end with a composer node.
func (c *AppConfig) RequireComposer() bool {
	if c == nil || c.Editor.RequireComposer == nil {
		return true
	}
	return *c.Editor.RequireComposer
}

func (c *AppConfig) ObjectStoreScheme() string {
	if c == nil || c.Editor.ObjectStoreScheme == nil || strings.TrimSpace(*c.Editor.ObjectStoreScheme) == "" {
		return DefaultObjectStoreScheme
	}
	return strings.TrimSpace(*c.Editor.ObjectStoreScheme)
}

// DatabasePath defaults to documents.db next to the config file.
func (c *AppConfig) DatabasePath() string {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return strings.TrimSpace(*c.Database.Path)
	}
	dir, _, err := DefaultPaths()
	if err != nil {
		return "documents.db"
	}
	return filepath.Join(dir, "documents.db")
}

// ModelsFile defaults to models.json next to the config file.
func (c *AppConfig) ModelsFile() string {
	if c != nil && c.Models.File != nil && strings.TrimSpace(*c.Models.File) != "" {
		return strings.TrimSpace(*c.Models.File)
	}
	dir, _, err := DefaultPaths()
	if err != nil {
		return "models.json"
	}
	return filepath.Join(dir, "models.json")
}

// PresetsFile defaults to model_providers.json next to the models file.
func (c *AppConfig) PresetsFile() string {
	if c != nil && c.Models.PresetsFile != nil && strings.TrimSpace(*c.Models.PresetsFile) != "" {
		return strings.TrimSpace(*c.Models.PresetsFile)
	}
	return filepath.Join(filepath.Dir(c.ModelsFile()), "model_providers.json")
}

func (c *AppConfig) RedisAddr() string {
	if c == nil || c.Redis.Addr == nil {
		return ""
	}
	return strings.TrimSpace(*c.Redis.Addr)
}

func (c *AppConfig) RedisPassword() string {
	if c == nil || c.Redis.Password == nil {
		return ""
	}
	return *c.Redis.Password
}

func (c *AppConfig) RedisDB() int {
	if c == nil || c.Redis.DB == nil {
		return 0
	}
	return *c.Redis.DB
}

func (c *AppConfig) RedisChannel() string {
	if c == nil || c.Redis.Channel == nil || strings.TrimSpace(*c.Redis.Channel) == "" {
		return DefaultRedisChannel
	}
	return strings.TrimSpace(*c.Redis.Channel)
}

func (c *AppConfig) LogLevel() string {
	if c == nil || c.Log.Level == nil {
		return DefaultLogLevel
	}
	return *c.Log.Level
}

func (c *AppConfig) LogFormat() string {
	if c == nil || c.Log.Format == nil {
		return DefaultLogFormat
	}
	return *c.Log.Format
}

func ptr[T any](v T) *T { return &v }
