package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/service"
	"github.com/choraleia/threadwriter/pkg/thread"
	"github.com/choraleia/threadwriter/pkg/utils"
)

var ErrInvalidInteraction = errors.New("invalid interaction")

// Controller is the part of the thread plugin the renderer drives.
type Controller interface {
	Editor() *editor.Editor
	Submit(ctx context.Context, req service.SubmitRequest) error
	Stop(ctx context.Context, threadID string) error
	SelectDropdown(sel service.DropdownSelection) error
	AutoAssignModel(threadID string) (string, error)
}

// InteractionKind names a UI action on a thread.
type InteractionKind string

const (
	SubmitClick    InteractionKind = "submit"
	StopClick      InteractionKind = "stop"
	DropdownSelect InteractionKind = "dropdown"
)

// Interaction is a UI action. Threads are addressed by id or by a position
// inside them.
type Interaction struct {
	Kind       InteractionKind `json:"kind" binding:"required"`
	ThreadID   string          `json:"threadId,omitempty"`
	NodePos    *int            `json:"nodePos,omitempty"`
	DropdownID string          `json:"dropdownId,omitempty"`
	Option     string          `json:"option,omitempty"`
}

// Renderer materialises thread views for one open document and routes
// interactions to its controller.
type Renderer struct {
	documentID string
	controller Controller
	catalog    service.ModelCatalog
	logger     *slog.Logger
}

func NewRenderer(documentID string, controller Controller, catalog service.ModelCatalog) *Renderer {
	return &Renderer{
		documentID: documentID,
		controller: controller,
		catalog:    catalog,
		logger:     utils.GetLogger().With("component", "view", "document", documentID),
	}
}

func (r *Renderer) available() []models.AvailableModel {
	if r.catalog == nil {
		return nil
	}
	return r.catalog.AvailableModels()
}

func (r *Renderer) state() (*editor.State, error) {
	e := r.controller.Editor()
	if e == nil {
		return nil, service.ErrNotAttached
	}
	return e.State(), nil
}

// Render returns the current views. Threads displayed without a model get
// the first available one first.
func (r *Renderer) Render() (DocumentView, error) {
	s, err := r.state()
	if err != nil {
		return DocumentView{}, err
	}
	for _, t := range thread.Threads(s.Doc()) {
		if t.Node.AttrString(models.AttrAIModel) != "" || t.ID() == "" {
			continue
		}
		if _, err := r.controller.AutoAssignModel(t.ID()); err != nil {
			if errors.Is(err, service.ErrNoModelAvailable) {
				r.logger.Debug("No model to assign", "thread", t.ID())
				break
			}
			return DocumentView{}, err
		}
	}
	if s, err = r.state(); err != nil {
		return DocumentView{}, err
	}
	return Build(r.documentID, s, r.available()), nil
}

// RenderThread returns the view of one thread.
func (r *Renderer) RenderThread(threadID string) (ThreadView, error) {
	dv, err := r.Render()
	if err != nil {
		return ThreadView{}, err
	}
	for _, t := range dv.Threads {
		if t.ThreadID == threadID {
			return t, nil
		}
	}
	return ThreadView{}, thread.ErrThreadNotFound
}

// Handle translates an interaction into the matching controller intent.
func (r *Renderer) Handle(ctx context.Context, in Interaction) error {
	r.logger.Debug("Interaction", "kind", in.Kind, "thread", in.ThreadID, "dropdown", in.DropdownID)
	switch in.Kind {
	case SubmitClick:
		return r.controller.Submit(ctx, service.SubmitRequest{ThreadID: in.ThreadID, NodePos: in.NodePos})
	case StopClick:
		id, err := r.threadID(in)
		if err != nil {
			return err
		}
		return r.controller.Stop(ctx, id)
	case DropdownSelect:
		if in.DropdownID == "" {
			return fmt.Errorf("%w: dropdown id is required", ErrInvalidInteraction)
		}
		pos, err := r.threadPos(in)
		if err != nil {
			return err
		}
		return r.controller.SelectDropdown(service.DropdownSelection{
			DropdownID: in.DropdownID,
			Option:     in.Option,
			NodePos:    pos,
		})
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInteraction, in.Kind)
	}
}

func (r *Renderer) threadID(in Interaction) (string, error) {
	if in.ThreadID != "" {
		return in.ThreadID, nil
	}
	if in.NodePos == nil {
		return "", fmt.Errorf("%w: thread id or node position is required", ErrInvalidInteraction)
	}
	s, err := r.state()
	if err != nil {
		return "", err
	}
	t, ok := thread.ResolveThread(s.Doc(), *in.NodePos)
	if !ok {
		return "", thread.ErrThreadNotFound
	}
	return t.ID(), nil
}

func (r *Renderer) threadPos(in Interaction) (int, error) {
	if in.NodePos != nil {
		return *in.NodePos, nil
	}
	if in.ThreadID == "" {
		return 0, fmt.Errorf("%w: thread id or node position is required", ErrInvalidInteraction)
	}
	s, err := r.state()
	if err != nil {
		return 0, err
	}
	t, ok := thread.FindThread(s.Doc(), in.ThreadID)
	if !ok {
		return 0, thread.ErrThreadNotFound
	}
	return t.Pos, nil
}
