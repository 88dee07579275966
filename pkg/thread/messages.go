package thread

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/choraleia/threadwriter/pkg/models"
)

// URLFunc resolves an image reference into a URL for the outbound payload.
type URLFunc func(models.ImageRef) string

// ImageURL builds the object store URL of an image reference.
func ImageURL(scheme string, ref models.ImageRef) string {
	return fmt.Sprintf("%s://workspace-%s-files/%s", scheme, ref.WorkspaceID, ref.FileID)
}

// SchemeURL returns a URLFunc for the given object store scheme.
func SchemeURL(scheme string) URLFunc {
	return func(ref models.ImageRef) string { return ImageURL(scheme, ref) }
}

// ToMessages assembles content items into chat messages. Adjacent text-only
// items of the same role are merged with a newline. Items with images always
// start a new message whose content is a text part, empty when the item
// has no text, followed by image parts.
func ToMessages(items []ThreadContent, url URLFunc) []models.ChatCompletionMessage {
	var out []models.ChatCompletionMessage
	for _, item := range items {
		role := item.Role()
		if len(item.Images) > 0 {
			parts := make([]models.ContentPart, 0, len(item.Images)+1)
			parts = append(parts, models.ContentPart{Type: models.ContentPartText, Text: item.Text})
			for _, ref := range item.Images {
				parts = append(parts, models.ContentPart{
					Type:     models.ContentPartImageURL,
					ImageURL: &models.ImageURL{URL: url(ref)},
				})
			}
			out = append(out, models.ChatCompletionMessage{Role: role, Content: parts})
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			if prev, ok := out[n-1].Content.(string); ok {
				out[n-1].Content = prev + "\n" + item.Text
				continue
			}
		}
		out = append(out, models.ChatCompletionMessage{Role: role, Content: item.Text})
	}
	return out
}

// ToSchemaMessages converts assembled messages into eino messages.
func ToSchemaMessages(msgs []models.ChatCompletionMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := &schema.Message{Role: schemaRole(m.Role)}
		if parts := m.Parts(); parts != nil {
			for _, p := range parts {
				switch p.Type {
				case models.ContentPartText:
					msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
						Type: schema.ChatMessagePartTypeText,
						Text: p.Text,
					})
				case models.ContentPartImageURL:
					if p.ImageURL == nil {
						continue
					}
					msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
						Type:     schema.ChatMessagePartTypeImageURL,
						ImageURL: &schema.ChatMessageImageURL{URL: p.ImageURL.URL},
					})
				}
			}
		} else {
			msg.Content = m.Text()
		}
		out = append(out, msg)
	}
	return out
}

func schemaRole(role string) schema.RoleType {
	switch role {
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	default:
		return schema.User
	}
}
