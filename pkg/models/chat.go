// OpenAI-compatible message types for outbound LLM payloads
package models

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Content part types
const (
	ContentPartText     = "text"
	ContentPartImageURL = "image_url"
)

// ChatCompletionMessage represents one conversation message sent to a model
type ChatCompletionMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []ContentPart when the message carries images
}

// Text returns the message text: the string content, or the text parts joined.
func (m ChatCompletionMessage) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []ContentPart:
		var out string
		for _, p := range c {
			if p.Type == ContentPartText {
				out += p.Text
			}
		}
		return out
	}
	return ""
}

// Parts returns the multi-modal parts, or nil for plain text content.
func (m ChatCompletionMessage) Parts() []ContentPart {
	parts, _ := m.Content.([]ContentPart)
	return parts
}

// ContentPart represents a part of multi-modal content
type ContentPart struct {
	Type     string    `json:"type"`                // "text", "image_url"
	Text     string    `json:"text,omitempty"`      // For text type
	ImageURL *ImageURL `json:"image_url,omitempty"` // For image_url type
}

// ImageURL for image content
type ImageURL struct {
	URL    string `json:"url"`              // URL or base64 data URI
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}
