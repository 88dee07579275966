package models

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed presets.json
var presetsFS embed.FS

const presetsFileName = ".threadwriter/model_providers.json"

// ModelPreset is a predefined model a user can add with one click.
type ModelPreset struct {
	Model       string   `json:"model"`
	Name        string   `json:"name"`
	ShortTitle  string   `json:"short_title,omitempty"`
	Domain      string   `json:"domain"`     // High-level category
	TaskTypes   []string `json:"task_types"` // Specific tasks supported
	Description string   `json:"description,omitempty"`
}

// ProviderPreset represents a provider with its predefined models
type ProviderPreset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	BaseURL     string        `json:"base_url"`
	IconName    string        `json:"icon_name,omitempty"`
	Color       string        `json:"color,omitempty"`
	Presets     []ModelPreset `json:"presets"`
	ExtraFields []ExtraField  `json:"extra_fields,omitempty"`
}

// ExtraField defines additional fields required by a provider
type ExtraField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
}

// PresetsConfig holds all provider presets
type PresetsConfig struct {
	Providers []ProviderPreset `json:"providers"`
}

// Provider returns the preset of a provider id.
func (c *PresetsConfig) Provider(id string) (ProviderPreset, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderPreset{}, false
}

// DefaultPresetsFile returns ~/.threadwriter/model_providers.json.
func DefaultPresetsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return presetsFileName
	}
	return filepath.Join(home, presetsFileName)
}

// loadEmbeddedPresets reads presets from embedded JSON file
func loadEmbeddedPresets() (*PresetsConfig, error) {
	data, err := presetsFS.ReadFile("presets.json")
	if err != nil {
		return nil, err
	}
	var config PresetsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadPresets reads presets from path first. If the file is missing or
// unreadable it is recreated from the embedded presets.json.
func LoadPresets(path string) (*PresetsConfig, error) {
	if path == "" {
		path = DefaultPresetsFile()
	}

	if data, err := os.ReadFile(path); err == nil {
		var config PresetsConfig
		if err := json.Unmarshal(data, &config); err == nil {
			return &config, nil
		}
		// If parse fails, fall through to recreate from embedded
	}

	config, err := loadEmbeddedPresets()
	if err != nil {
		return nil, err
	}

	// A failed write only means the file is created on the next load.
	_ = SavePresets(path, config)

	return config, nil
}

// SavePresets saves the presets config to path
func SavePresets(path string, config *PresetsConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
