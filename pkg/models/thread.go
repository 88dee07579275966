package models

// Thread node attributes
const (
	AttrThreadID          = "threadId"
	AttrStatus            = "status"
	AttrAIModel           = "aiModel"
	AttrThreadContext     = "threadContext"
	AttrWorkspaceSelected = "workspaceSelected"
	AttrImageGeneration   = "imageGenerationEnabled"
	AttrImageSize         = "imageGenerationSize"
)

// Response node attributes
const (
	AttrResponseID             = "id"
	AttrInitialRenderAnimation = "isInitialRenderAnimation"
	AttrReceivingAnimation     = "isReceivingAnimation"
	AttrAIProvider             = "aiProvider"
)

// Image node attributes
const (
	AttrFileID        = "fileId"
	AttrWorkspaceID   = "workspaceId"
	AttrSrc           = "src"
	AttrIsPartial     = "isPartial"
	AttrPartialIndex  = "partialIndex"
	AttrRevisedPrompt = "revisedPrompt"
	AttrGeneratedBy   = "generatedBy"
	AttrImageResponse = "responseId"
)

// ThreadStatus is the lifecycle status stored on a thread.
type ThreadStatus string

const (
	ThreadStatusActive    ThreadStatus = "active"
	ThreadStatusPaused    ThreadStatus = "paused"
	ThreadStatusCompleted ThreadStatus = "completed"
)

// ThreadContext is the extraction scope used when a thread submits.
type ThreadContext string

const (
	ContextThread    ThreadContext = "Thread"
	ContextDocument  ThreadContext = "Document"
	ContextWorkspace ThreadContext = "Workspace"
)

// ParseThreadContext maps an attribute value to a scope. Unknown values fall
// back to the thread scope.
func ParseThreadContext(s string) ThreadContext {
	switch ThreadContext(s) {
	case ContextDocument:
		return ContextDocument
	case ContextWorkspace:
		return ContextWorkspace
	default:
		return ContextThread
	}
}

// ImageRef points at a stored image. It is resolved into a URL only when a
// message payload is built.
type ImageRef struct {
	FileID      string `json:"fileId"`
	WorkspaceID string `json:"workspaceId"`
}

// Valid reports whether both halves of the reference are set.
func (r ImageRef) Valid() bool { return r.FileID != "" && r.WorkspaceID != "" }
