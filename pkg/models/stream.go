package models

// StreamStatus drives the response lifecycle of a thread.
type StreamStatus string

const (
	StreamStart     StreamStatus = "START_STREAM"
	StreamStreaming StreamStatus = "STREAMING"
	StreamEnd       StreamStatus = "END_STREAM"
)

// StreamEventType marks events of the image generation sub-stream.
type StreamEventType string

const (
	StreamImagePartial  StreamEventType = "image_partial"
	StreamImageComplete StreamEventType = "image_complete"
)

// Segment types
const (
	SegmentHeader    = "header"
	SegmentParagraph = "paragraph"
	SegmentCodeBlock = "codeBlock"
	SegmentText      = "text"
	SegmentCode      = "code"
	SegmentNewline   = "newline"
)

// StreamSegment is one chunk of streamed content.
type StreamSegment struct {
	Segment         string   `json:"segment"`
	Styles          []string `json:"styles"`
	Type            string   `json:"type"`
	Level           int      `json:"level,omitempty"`
	IsBlockDefining bool     `json:"isBlockDefining"`
}

// StreamEvent is one inbound message of the streaming transport.
type StreamEvent struct {
	Status         StreamStatus    `json:"status,omitempty"`
	Type           StreamEventType `json:"type,omitempty"`
	ThreadID       string          `json:"threadId,omitempty"`
	AIChatThreadID string          `json:"aiChatThreadId,omitempty"`
	AIProvider     string          `json:"aiProvider,omitempty"`
	Segment        *StreamSegment  `json:"segment,omitempty"`

	ImageURL      string `json:"imageUrl,omitempty"`
	FileID        string `json:"fileId,omitempty"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
	PartialIndex  *int   `json:"partialIndex,omitempty"`
	ResponseID    string `json:"responseId,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// ThreadKey returns the thread the event targets, preferring threadId.
func (e StreamEvent) ThreadKey() string {
	if e.ThreadID != "" {
		return e.ThreadID
	}
	return e.AIChatThreadID
}

// IsImageEvent reports whether the event belongs to the image sub-stream.
func (e StreamEvent) IsImageEvent() bool {
	return e.Type == StreamImagePartial || e.Type == StreamImageComplete
}

// ImageOptions carries the image generation settings of a thread.
type ImageOptions struct {
	ImageGenerationEnabled bool   `json:"imageGenerationEnabled"`
	ImageGenerationSize    string `json:"imageGenerationSize,omitempty"`
}

// SendRequest is handed to the send handler when a thread submits.
type SendRequest struct {
	Messages     []ChatCompletionMessage `json:"messages"`
	AIModel      string                  `json:"aiModel"`
	ThreadID     string                  `json:"threadId"`
	ImageOptions *ImageOptions           `json:"imageOptions,omitempty"`
}

// StopRequest is handed to the stop handler.
type StopRequest struct {
	ThreadID string `json:"threadId"`
}

// DirtyState is reported when an attribute edit actually changed the document.
type DirtyState struct {
	RequiresSave bool `json:"requiresSave"`
}
