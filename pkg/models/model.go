package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const modelFileName = ".threadwriter/models.json"

// ============================================================
// Domain Constants - High-level model categories
// ============================================================

const (
	DomainLanguage   = "language"   // Text/language processing
	DomainVision     = "vision"     // Image processing
	DomainMultimodal = "multimodal" // Multi-modal processing
)

// ============================================================
// Task Type Constants - Specific capabilities within domains
// ============================================================

const (
	TaskTypeChat               = "chat"                // Conversational text generation
	TaskTypeImageUnderstanding = "image_understanding" // Image to text
	TaskTypeImageGeneration    = "image_generation"    // Text to image
)

// ModelConfig unified struct containing common fields and vendor extension fields.
// Extra stores vendor specific additional parameters.
//
// ShortTitle, IconName and Color only drive how a thread displays its model.
type ModelConfig struct {
	ID         string                 `json:"id"`
	Provider   string                 `json:"provider"`
	Domain     string                 `json:"domain"`     // High-level category (language, vision, multimodal)
	TaskTypes  []string               `json:"task_types"` // Specific tasks supported (chat, image_generation, ...)
	Model      string                 `json:"model"`      // Model identifier
	Name       string                 `json:"name"`       // Display name
	ShortTitle string                 `json:"short_title,omitempty"`
	IconName   string                 `json:"icon_name,omitempty"`
	Color      string                 `json:"color,omitempty"`
	BaseUrl    string                 `json:"base_url"` // API endpoint
	ApiKey     string                 `json:"api_key"`  // API key
	Extra      map[string]interface{} `json:"extra"`    // Vendor-specific fields
}

func (m *ModelConfig) Normalize() {
	if m.Domain == "" {
		m.Domain = DomainLanguage
	}
	if len(m.TaskTypes) == 0 {
		m.TaskTypes = []string{TaskTypeChat}
	}
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
	if m.ShortTitle == "" {
		m.ShortTitle = m.Name
	}
	if m.ShortTitle == "" {
		m.ShortTitle = m.Model
	}
}

// HasTask reports whether the model declares the task type.
func (m *ModelConfig) HasTask(task string) bool {
	for _, t := range m.TaskTypes {
		if t == task {
			return true
		}
	}
	return false
}

// Available projects the config onto the read-only view threads use.
func (m *ModelConfig) Available() AvailableModel {
	return AvailableModel{
		Provider:   m.Provider,
		Model:      m.Model,
		ShortTitle: m.ShortTitle,
		IconName:   m.IconName,
		Color:      m.Color,
	}
}

// AvailableModel is one entry of the model picker.
type AvailableModel struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	ShortTitle string `json:"shortTitle"`
	IconName   string `json:"iconName"`
	Color      string `json:"color"`
}

// ID returns the provider:model identifier stored on threads.
func (a AvailableModel) ID() string { return FormatModelID(a.Provider, a.Model) }

// FormatModelID joins provider and model as stored in a thread's aiModel attribute.
func FormatModelID(provider, model string) string {
	return provider + ":" + model
}

// ParseModelID splits a provider:model identifier. The model part may itself
// contain colons (e.g. ollama tags).
func ParseModelID(id string) (provider, model string, ok bool) {
	provider, model, ok = strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", false
	}
	return provider, model, true
}

// DefaultModelsFile returns ~/.threadwriter/models.json.
func DefaultModelsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return modelFileName // fallback
	}
	return filepath.Join(home, modelFileName)
}

// LoadModels reads the model list at path. A missing file is an empty list.
func LoadModels(path string) ([]*ModelConfig, error) {
	if path == "" {
		path = DefaultModelsFile()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ModelConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []*ModelConfig
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}
	out := models[:0]
	for _, m := range models {
		if m != nil {
			m.Normalize()
			out = append(out, m)
		}
	}
	return out, nil
}

// SaveModels writes the model list to path.
func SaveModels(path string, models []*ModelConfig) error {
	if path == "" {
		path = DefaultModelsFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ark":       {},
	"ollama":    {},
	"qianfan":   {},
	"qwen":      {},
	"custom":    {},
}
