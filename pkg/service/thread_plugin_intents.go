package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/thread"
)

var ErrNoStopHandler = errors.New("no stop handler configured")

// Dropdown ids
const (
	DropdownModel             = "model"
	DropdownContext           = "context"
	DropdownWorkspaceSelected = "workspaceSelected"
	DropdownImageGeneration   = "imageGeneration"
	DropdownImageSize         = "imageSize"
)

const noModelMessage = "Please select an AI model for this thread before sending."

// SubmitRequest names the thread to submit, by id or by a position inside
// it. When both are empty the thread around the cursor is used.
type SubmitRequest struct {
	ThreadID string `json:"threadId,omitempty"`
	NodePos  *int   `json:"nodePos,omitempty"`
}

// DropdownSelection is a generic dropdown choice made inside a thread.
type DropdownSelection struct {
	DropdownID string `json:"dropdownId"`
	Option     string `json:"option"`
	NodePos    int    `json:"nodePos"`
}

func (p *ThreadPlugin) resolveThread(s *editor.State, threadID string, nodePos *int) (thread.ThreadMatch, bool) {
	switch {
	case threadID != "":
		return thread.FindThread(s.Doc(), threadID)
	case nodePos != nil:
		return thread.ResolveThread(s.Doc(), *nodePos)
	default:
		return thread.ResolveThread(s.Doc(), s.Selection())
	}
}

// Submit sends the conversation of a thread to the send handler. The thread
// must have a model selected; the composer content, if any, becomes a user
// message first.
func (p *ThreadPlugin) Submit(ctx context.Context, req SubmitRequest) error {
	e, err := p.attached()
	if err != nil {
		return err
	}
	if p.opts.Sender == nil {
		return ErrNoSendHandler
	}

	t, ok := p.resolveThread(e.State(), req.ThreadID, req.NodePos)
	if !ok {
		return thread.ErrThreadNotFound
	}
	threadID := t.ID()
	aiModel := t.Node.AttrString(models.AttrAIModel)
	if aiModel == "" {
		if p.opts.Prompter != nil {
			p.opts.Prompter.Prompt(noModelMessage)
		}
		return ErrNoModelSelected
	}

	if p.opts.RequireComposer {
		if err := e.Update(func(s *editor.State) (*doc.Transaction, error) {
			return p.moveComposerContent(s, threadID)
		}); err != nil {
			return fmt.Errorf("submit composer content: %w", err)
		}
	}

	s := e.State()
	t, ok = thread.FindThread(s.Doc(), threadID)
	if !ok {
		return thread.ErrThreadNotFound
	}
	scope := models.ParseThreadContext(t.Node.AttrString(models.AttrThreadContext))
	items, err := thread.GetActiveThreadContent(s.Doc(), thread.ContentQuery{
		Scope:           scope,
		NodePos:         &t.Pos,
		CurrentThreadID: threadID,
	})
	if err != nil {
		return fmt.Errorf("extract thread content: %w", err)
	}
	messages := thread.ToMessages(items, thread.SchemeURL(p.opts.ObjectStoreScheme))
	if len(messages) == 0 {
		return ErrNothingToSend
	}

	sendReq := models.SendRequest{
		Messages: messages,
		AIModel:  aiModel,
		ThreadID: threadID,
	}
	if t.Node.AttrBool(models.AttrImageGeneration) {
		sendReq.ImageOptions = &models.ImageOptions{
			ImageGenerationEnabled: true,
			ImageGenerationSize:    t.Node.AttrString(models.AttrImageSize),
		}
	}

	p.logger.Info("Submitting thread",
		"thread", threadID,
		"model", aiModel,
		"scope", scope,
		"messages", len(messages),
	)
	if err := p.opts.Sender.Send(ctx, sendReq); err != nil {
		return fmt.Errorf("send thread %s: %w", threadID, err)
	}
	return nil
}

// moveComposerContent turns what the user typed into a user message placed
// directly before the composer and leaves the composer with an empty
// paragraph. It does nothing when the composer is blank.
func (p *ThreadPlugin) moveComposerContent(s *editor.State, threadID string) (*doc.Transaction, error) {
	t, ok := thread.FindThread(s.Doc(), threadID)
	if !ok {
		return nil, thread.ErrThreadNotFound
	}
	var (
		composer *doc.Node
		pos      int
	)
	at := t.Pos + 1
	for _, c := range t.Node.Children() {
		if c.Kind() == doc.KindComposer {
			composer, pos = c, at
		}
		at += c.NodeSize()
	}
	if composer == nil || composerBlank(composer) {
		return nil, nil
	}

	tr := s.Tr()
	msg := doc.UserMessage(nil, composer.Children()...)
	if err := tr.Insert(pos, msg); err != nil {
		return nil, err
	}
	pos += msg.NodeSize()
	if err := tr.ReplaceWith(pos+1, pos+1+composer.ContentSize(), doc.Paragraph()); err != nil {
		return nil, err
	}
	tr.SetSelection(pos + 2)
	return tr, nil
}

func composerBlank(n *doc.Node) bool {
	if strings.TrimSpace(n.TextContent()) != "" {
		return false
	}
	return len(thread.CollectContentWithImages(n).Images) == 0
}

// Stop asks the stop handler to end generation for the thread. The response
// settles when the upstream source sends END_STREAM.
func (p *ThreadPlugin) Stop(ctx context.Context, threadID string) error {
	e, err := p.attached()
	if err != nil {
		return err
	}
	if p.opts.Stopper == nil {
		return ErrNoStopHandler
	}
	if !thread.HasThread(e.State().Doc(), threadID) {
		return thread.ErrThreadNotFound
	}
	p.logger.Info("Stopping thread", "thread", threadID)
	if err := p.opts.Stopper.Stop(ctx, models.StopRequest{ThreadID: threadID}); err != nil {
		return fmt.Errorf("stop thread %s: %w", threadID, err)
	}
	return nil
}

// InsertThread adds a new thread after the thread containing at, or after the
// top-level block containing it. A nil at means the cursor. The cursor is
// moved into the new thread and its id returned.
func (p *ThreadPlugin) InsertThread(at *int) (string, error) {
	e, err := p.attached()
	if err != nil {
		return "", err
	}
	id := p.opts.NewID()
	err = e.Update(func(s *editor.State) (*doc.Transaction, error) {
		cursor := s.Selection()
		if at != nil {
			cursor = *at
		}
		pos, err := threadInsertPos(s.Doc(), cursor)
		if err != nil {
			return nil, err
		}

		first := doc.Paragraph()
		caret := pos + 2
		if p.opts.RequireComposer {
			first = doc.Composer(doc.Paragraph())
			caret = pos + 3
		}
		node := doc.Thread(doc.Attrs{
			models.AttrThreadID:      id,
			models.AttrStatus:        string(models.ThreadStatusActive),
			models.AttrAIModel:       "",
			models.AttrThreadContext: string(models.ContextThread),
		}, first)

		tr := s.Tr()
		if err := tr.Insert(pos, node); err != nil {
			return nil, err
		}
		tr.SetSelection(caret)
		return tr, nil
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("Thread inserted", "thread", id)
	return id, nil
}

func threadInsertPos(d *doc.Node, cursor int) (int, error) {
	if t, ok := thread.ResolveThread(d, cursor); ok {
		return t.Pos + t.Node.NodeSize(), nil
	}
	rp, err := d.Resolve(cursor)
	if err != nil {
		return 0, err
	}
	if rp.Depth() == 0 {
		return cursor, nil
	}
	return rp.After(1), nil
}

// SelectDropdown applies a dropdown choice to the thread containing the
// given position. Choosing the current value is a no-op; an actual change
// is reported to the dirty notifier.
func (p *ThreadPlugin) SelectDropdown(sel DropdownSelection) error {
	e, err := p.attached()
	if err != nil {
		return err
	}
	changed := false
	err = e.Update(func(s *editor.State) (*doc.Transaction, error) {
		t, ok := thread.ResolveThread(s.Doc(), sel.NodePos)
		if !ok {
			return nil, thread.ErrThreadNotFound
		}
		key, value, err := p.dropdownValue(sel)
		if err != nil {
			return nil, err
		}
		if sameAttr(t.Node.Attr(key), value) {
			return nil, nil
		}
		tr := s.Tr()
		if err := tr.SetNodeAttrs(t.Pos, doc.Attrs{key: value}); err != nil {
			return nil, err
		}
		changed = true
		return tr, nil
	})
	if err != nil {
		return err
	}
	if changed {
		p.logger.Debug("Thread attribute changed", "dropdown", sel.DropdownID, "option", sel.Option)
		p.notifyDirty()
	}
	return nil
}

func (p *ThreadPlugin) dropdownValue(sel DropdownSelection) (string, any, error) {
	switch sel.DropdownID {
	case DropdownModel:
		id, err := p.resolveModel(sel.Option)
		return models.AttrAIModel, id, err
	case DropdownContext:
		switch scope := models.ThreadContext(sel.Option); scope {
		case models.ContextThread, models.ContextDocument, models.ContextWorkspace:
			return models.AttrThreadContext, string(scope), nil
		}
		return "", nil, fmt.Errorf("%w: context %q", ErrInvalidOption, sel.Option)
	case DropdownWorkspaceSelected, DropdownImageGeneration:
		b, err := strconv.ParseBool(sel.Option)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s %q", ErrInvalidOption, sel.DropdownID, sel.Option)
		}
		if sel.DropdownID == DropdownWorkspaceSelected {
			return models.AttrWorkspaceSelected, b, nil
		}
		return models.AttrImageGeneration, b, nil
	case DropdownImageSize:
		if strings.TrimSpace(sel.Option) == "" {
			return "", nil, fmt.Errorf("%w: empty image size", ErrInvalidOption)
		}
		return models.AttrImageSize, sel.Option, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownDropdown, sel.DropdownID)
	}
}

// resolveModel maps a dropdown option, either a provider:model id or a
// model's short title, to the id stored on the thread.
func (p *ThreadPlugin) resolveModel(option string) (string, error) {
	if p.opts.Catalog == nil {
		if _, _, ok := models.ParseModelID(option); ok {
			return option, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, option)
	}
	available := p.opts.Catalog.AvailableModels()
	for _, m := range available {
		if m.ID() == option {
			return option, nil
		}
	}
	for _, m := range available {
		if m.ShortTitle != "" && m.ShortTitle == option {
			return m.ID(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, option)
}

func sameAttr(current, next any) bool {
	switch v := next.(type) {
	case bool:
		b, _ := current.(bool)
		return b == v
	case string:
		s, _ := current.(string)
		return s == v
	default:
		return current == next
	}
}

// AutoAssignModel gives a thread without a model the first available one
// and returns the thread's model.
func (p *ThreadPlugin) AutoAssignModel(threadID string) (string, error) {
	e, err := p.attached()
	if err != nil {
		return "", err
	}
	var assigned string
	changed := false
	err = e.Update(func(s *editor.State) (*doc.Transaction, error) {
		t, ok := thread.FindThread(s.Doc(), threadID)
		if !ok {
			return nil, thread.ErrThreadNotFound
		}
		if current := t.Node.AttrString(models.AttrAIModel); current != "" {
			assigned = current
			return nil, nil
		}
		if p.opts.Catalog == nil {
			return nil, ErrNoModelAvailable
		}
		available := p.opts.Catalog.AvailableModels()
		if len(available) == 0 {
			return nil, ErrNoModelAvailable
		}
		assigned = available[0].ID()
		tr := s.Tr()
		if err := tr.SetNodeAttrs(t.Pos, doc.Attrs{models.AttrAIModel: assigned}); err != nil {
			return nil, err
		}
		changed = true
		return tr, nil
	})
	if err != nil {
		return "", err
	}
	if changed {
		p.logger.Debug("Model auto-assigned", "thread", threadID, "model", assigned)
		p.notifyDirty()
	}
	return assigned, nil
}

func (p *ThreadPlugin) notifyDirty() {
	if p.opts.Dirty != nil {
		p.opts.Dirty.NotifyDirty(models.DirtyState{RequiresSave: true})
	}
}
