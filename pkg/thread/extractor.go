package thread

import (
	"fmt"
	"strings"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/models"
)

// ItemKind tells which kind of thread child produced a content item.
type ItemKind int

const (
	ItemUser ItemKind = iota
	ItemResponse
	ItemDelimiter
)

// ThreadContent is one role-tagged piece of conversation content.
type ThreadContent struct {
	Kind     ItemKind
	ThreadID string
	Text     string
	Images   []models.ImageRef
}

// Role returns the chat role the item is sent with.
func (c ThreadContent) Role() string {
	if c.Kind == ItemResponse {
		return models.RoleAssistant
	}
	return models.RoleUser
}

// ContentQuery selects what GetActiveThreadContent extracts. NodePos, when
// set, names the thread explicitly; otherwise Cursor is walked up.
type ContentQuery struct {
	Scope           models.ThreadContext
	NodePos         *int
	Cursor          int
	CurrentThreadID string
}

// FormattedContent is the flattened text of a node plus the images found in it.
type FormattedContent struct {
	Text   string
	Images []models.ImageRef
}

// CollectFormattedText flattens a node into plain text. Hard breaks become
// newlines and code blocks are fenced.
func CollectFormattedText(n *doc.Node) string {
	return CollectContentWithImages(n).Text
}

// CollectContentWithImages flattens a node like CollectFormattedText and
// gathers embedded image references in document order.
func CollectContentWithImages(n *doc.Node) FormattedContent {
	var (
		b      strings.Builder
		images []models.ImageRef
	)
	collect(n, &b, &images)
	return FormattedContent{Text: b.String(), Images: images}
}

func collect(n *doc.Node, b *strings.Builder, images *[]models.ImageRef) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case doc.KindText:
		b.WriteString(n.Text())
	case doc.KindHardBreak:
		b.WriteByte('\n')
	case doc.KindCodeBlock:
		b.WriteString("\n```\n")
		b.WriteString(n.TextContent())
		b.WriteString("\n```\n")
	case doc.KindImage:
		ref := models.ImageRef{
			FileID:      n.AttrString(models.AttrFileID),
			WorkspaceID: n.AttrString(models.AttrWorkspaceID),
		}
		if ref.Valid() {
			*images = append(*images, ref)
		}
	default:
		var prev *doc.Node
		for _, c := range n.Children() {
			if needsBlockSeparator(prev, c) {
				b.WriteByte('\n')
			}
			collect(c, b, images)
			prev = c
		}
	}
}

// needsBlockSeparator puts a newline between consecutive prose blocks. Code
// fences already carry their own line breaks.
func needsBlockSeparator(prev, next *doc.Node) bool {
	if prev == nil {
		return false
	}
	prose := func(n *doc.Node) bool {
		return n.Kind() == doc.KindParagraph || n.Kind() == doc.KindHeading
	}
	return prose(prev) && prose(next)
}

// GetActiveThreadContent extracts conversation content for a scope.
func GetActiveThreadContent(d *doc.Node, q ContentQuery) ([]ThreadContent, error) {
	switch q.Scope {
	case models.ContextDocument:
		return documentContent(d, func(ThreadMatch) bool { return true }), nil
	case models.ContextWorkspace:
		return documentContent(d, func(t ThreadMatch) bool {
			return t.Node.AttrBool(models.AttrWorkspaceSelected) ||
				(q.CurrentThreadID != "" && t.ID() == q.CurrentThreadID)
		}), nil
	default:
		at := q.Cursor
		if q.NodePos != nil {
			at = *q.NodePos
		}
		t, ok := ResolveThread(d, at)
		if !ok {
			return nil, fmt.Errorf("%w at position %d", ErrThreadNotFound, at)
		}
		return threadItems(t), nil
	}
}

func documentContent(d *doc.Node, include func(ThreadMatch) bool) []ThreadContent {
	var out []ThreadContent
	for _, t := range Threads(d) {
		if !include(t) {
			continue
		}
		id := t.ID()
		out = append(out, ThreadContent{Kind: ItemDelimiter, ThreadID: id, Text: fmt.Sprintf("<thread id=%q>", id)})
		out = append(out, threadItems(t)...)
		out = append(out, ThreadContent{Kind: ItemDelimiter, ThreadID: id, Text: "</thread>"})
	}
	return out
}

// threadItems emits one item per conversational child. Composers and
// control nodes are skipped, as are children without any content.
func threadItems(t ThreadMatch) []ThreadContent {
	id := t.ID()
	var out []ThreadContent
	for _, c := range t.Node.Children() {
		var kind ItemKind
		switch c.Kind() {
		case doc.KindResponse:
			kind = ItemResponse
		case doc.KindUserMessage, doc.KindParagraph, doc.KindHeading, doc.KindCodeBlock, doc.KindImage:
			kind = ItemUser
		default:
			continue
		}
		content := CollectContentWithImages(c)
		if strings.TrimSpace(content.Text) == "" && len(content.Images) == 0 {
			continue
		}
		out = append(out, ThreadContent{Kind: kind, ThreadID: id, Text: content.Text, Images: content.Images})
	}
	return out
}
