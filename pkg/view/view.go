// Package view turns thread, response and composer nodes into view models a
// UI can draw, and turns UI interactions back into thread plugin intents.
package view

import (
	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/service"
	"github.com/choraleia/threadwriter/pkg/thread"
)

// Item kinds inside a thread view.
const (
	ItemUserMessage = "userMessage"
	ItemResponse    = "response"
	ItemComposer    = "composer"
	ItemBlock       = "block"
)

// ImageSizes are the sizes offered by the image size dropdown.
var ImageSizes = []string{"auto", "1024x1024", "1024x1536", "1536x1024"}

// DocumentView is every thread of a document, in document order.
type DocumentView struct {
	DocumentID string       `json:"documentId"`
	Version    int64        `json:"version"`
	Threads    []ThreadView `json:"threads"`
}

// ThreadView is the header, controls and content of one thread.
type ThreadView struct {
	ThreadID          string     `json:"threadId"`
	Pos               int        `json:"pos"`
	Status            string     `json:"status"`
	AIModel           string     `json:"aiModel"`
	ModelTitle        string     `json:"modelTitle"`
	ModelIcon         string     `json:"modelIcon,omitempty"`
	ModelColor        string     `json:"modelColor,omitempty"`
	Context           string     `json:"context"`
	WorkspaceSelected bool       `json:"workspaceSelected"`
	ImageGeneration   bool       `json:"imageGeneration"`
	ImageSize         string     `json:"imageSize,omitempty"`
	Receiving         bool       `json:"receiving"`
	CanSubmit         bool       `json:"canSubmit"`
	CanStop           bool       `json:"canStop"`
	Dropdowns         []Dropdown `json:"dropdowns"`
	Items             []Item     `json:"items"`
}

// Item is one child of a thread.
type Item struct {
	Kind     string        `json:"kind"`
	Pos      int           `json:"pos"`
	Text     string        `json:"text,omitempty"`
	Response *ResponseView `json:"response,omitempty"`
	Composer *ComposerView `json:"composer,omitempty"`
}

// ResponseView is one AI reply.
type ResponseView struct {
	ID            string      `json:"id"`
	AIProvider    string      `json:"aiProvider,omitempty"`
	InitialRender bool        `json:"initialRender"`
	Receiving     bool        `json:"receiving"`
	Decorated     bool        `json:"decorated"`
	Text          string      `json:"text"`
	Images        []ImageView `json:"images,omitempty"`
}

// ImageView is a generated image inside a response.
type ImageView struct {
	Pos           int    `json:"pos"`
	Src           string `json:"src,omitempty"`
	FileID        string `json:"fileId,omitempty"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
	Partial       bool   `json:"partial"`
	PartialIndex  int    `json:"partialIndex,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// ComposerView is the input area at the end of a thread.
type ComposerView struct {
	Empty       bool   `json:"empty"`
	Placeholder string `json:"placeholder"`
	ContentPos  int    `json:"contentPos"`
}

// Dropdown is one of the thread header controls.
type Dropdown struct {
	ID       string   `json:"id"`
	Selected string   `json:"selected"`
	Options  []Option `json:"options"`
}

// Option is a dropdown entry. Value is what goes back in a DropdownSelect.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	IconName string `json:"iconName,omitempty"`
	Color    string `json:"color,omitempty"`
}

const composerPlaceholder = "Ask the AI anything..."

// Build materialises the view of every thread in s.
func Build(documentID string, s *editor.State, catalog []models.AvailableModel) DocumentView {
	out := DocumentView{
		DocumentID: documentID,
		Version:    service.VersionOf(s),
		Threads:    []ThreadView{},
	}
	st := service.StreamStateOf(s)
	decorated := map[int]bool{}
	for _, d := range st.Decorations() {
		decorated[d.From] = true
	}
	for _, t := range thread.Threads(s.Doc()) {
		out.Threads = append(out.Threads, buildThread(t, st, decorated, catalog))
	}
	return out
}

func buildThread(t thread.ThreadMatch, st *service.StreamState, decorated map[int]bool, catalog []models.AvailableModel) ThreadView {
	n := t.Node
	v := ThreadView{
		ThreadID:          t.ID(),
		Pos:               t.Pos,
		Status:            n.AttrString(models.AttrStatus),
		AIModel:           n.AttrString(models.AttrAIModel),
		Context:           string(models.ParseThreadContext(n.AttrString(models.AttrThreadContext))),
		WorkspaceSelected: n.AttrBool(models.AttrWorkspaceSelected),
		ImageGeneration:   n.AttrBool(models.AttrImageGeneration),
		ImageSize:         n.AttrString(models.AttrImageSize),
		Receiving:         st.IsReceiving(t.ID()),
		Items:             []Item{},
	}
	if v.Status == "" {
		v.Status = string(models.ThreadStatusActive)
	}
	v.ModelTitle = v.AIModel
	for _, m := range catalog {
		if m.ID() == v.AIModel {
			v.ModelTitle, v.ModelIcon, v.ModelColor = m.ShortTitle, m.IconName, m.Color
			break
		}
	}
	v.CanSubmit = v.AIModel != "" && !v.Receiving
	v.CanStop = v.Receiving
	v.Dropdowns = dropdowns(v, catalog)

	pos := t.Pos + 1
	for _, c := range n.Children() {
		v.Items = append(v.Items, buildItem(c, pos, decorated))
		pos += c.NodeSize()
	}
	return v
}

func buildItem(n *doc.Node, pos int, decorated map[int]bool) Item {
	switch n.Kind() {
	case doc.KindResponse:
		return Item{Kind: ItemResponse, Pos: pos, Response: buildResponse(n, pos, decorated[pos])}
	case doc.KindComposer:
		return Item{Kind: ItemComposer, Pos: pos, Text: thread.CollectFormattedText(n), Composer: &ComposerView{
			Empty:       n.TextContent() == "" && len(thread.CollectContentWithImages(n).Images) == 0,
			Placeholder: composerPlaceholder,
			ContentPos:  pos + 1,
		}}
	case doc.KindUserMessage:
		return Item{Kind: ItemUserMessage, Pos: pos, Text: thread.CollectFormattedText(n)}
	default:
		return Item{Kind: ItemBlock, Pos: pos, Text: thread.CollectFormattedText(n)}
	}
}

func buildResponse(n *doc.Node, pos int, decorated bool) *ResponseView {
	r := &ResponseView{
		ID:            n.AttrString(models.AttrResponseID),
		AIProvider:    n.AttrString(models.AttrAIProvider),
		InitialRender: n.AttrBool(models.AttrInitialRenderAnimation),
		Receiving:     n.AttrBool(models.AttrReceivingAnimation),
		Decorated:     decorated,
		Text:          thread.CollectFormattedText(n),
	}
	n.Descendants(func(c *doc.Node, rel int, _ *doc.Node, _ int) bool {
		if c.Kind() != doc.KindImage {
			return !c.IsTextblock()
		}
		r.Images = append(r.Images, ImageView{
			Pos:           pos + 1 + rel,
			Src:           c.AttrString(models.AttrSrc),
			FileID:        c.AttrString(models.AttrFileID),
			WorkspaceID:   c.AttrString(models.AttrWorkspaceID),
			Partial:       c.AttrBool(models.AttrIsPartial),
			PartialIndex:  c.AttrInt(models.AttrPartialIndex),
			RevisedPrompt: c.AttrString(models.AttrRevisedPrompt),
		})
		return false
	})
	return r
}

func dropdowns(v ThreadView, catalog []models.AvailableModel) []Dropdown {
	modelOpts := make([]Option, 0, len(catalog))
	for _, m := range catalog {
		label := m.ShortTitle
		if label == "" {
			label = m.ID()
		}
		modelOpts = append(modelOpts, Option{Value: m.ID(), Label: label, IconName: m.IconName, Color: m.Color})
	}
	sizes := make([]Option, 0, len(ImageSizes))
	for _, s := range ImageSizes {
		sizes = append(sizes, Option{Value: s, Label: s})
	}
	imageSize := v.ImageSize
	if imageSize == "" {
		imageSize = ImageSizes[0]
	}
	return []Dropdown{
		{ID: service.DropdownModel, Selected: v.AIModel, Options: modelOpts},
		{ID: service.DropdownContext, Selected: v.Context, Options: []Option{
			{Value: string(models.ContextThread), Label: "This thread"},
			{Value: string(models.ContextDocument), Label: "Whole document"},
			{Value: string(models.ContextWorkspace), Label: "Workspace"},
		}},
		{ID: service.DropdownWorkspaceSelected, Selected: boolString(v.WorkspaceSelected), Options: onOff()},
		{ID: service.DropdownImageGeneration, Selected: boolString(v.ImageGeneration), Options: onOff()},
		{ID: service.DropdownImageSize, Selected: imageSize, Options: sizes},
	}
}

func onOff() []Option {
	return []Option{{Value: "true", Label: "On"}, {Value: "false", Label: "Off"}}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
