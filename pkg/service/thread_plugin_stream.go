package service

import (
	"errors"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/thread"
)

var ErrMissingThreadID = errors.New("stream event names no thread")

// HandleStreamEvent applies one inbound stream event to the document. Events
// for threads this document does not contain are ignored. A chunk that
// cannot be placed is dropped and the stream carries on.
func (p *ThreadPlugin) HandleStreamEvent(ev models.StreamEvent) error {
	e, err := p.attached()
	if err != nil {
		return err
	}
	threadID := ev.ThreadKey()
	if threadID == "" {
		return ErrMissingThreadID
	}

	return e.Update(func(s *editor.State) (*doc.Transaction, error) {
		if !thread.HasThread(s.Doc(), threadID) {
			p.logger.Debug("Ignoring stream event for foreign thread", "thread", threadID)
			return nil, nil
		}
		if ev.IsImageEvent() {
			return p.handleImage(s, threadID, ev)
		}
		switch ev.Status {
		case models.StreamStart:
			return p.startStream(s, threadID, ev)
		case models.StreamStreaming:
			return p.streamChunk(s, threadID, ev)
		case models.StreamEnd:
			return p.endStream(s, threadID)
		default:
			p.logger.Debug("Ignoring stream event without known status", "thread", threadID, "status", ev.Status)
			return nil, nil
		}
	})
}

func (p *ThreadPlugin) startStream(s *editor.State, threadID string, ev models.StreamEvent) (*doc.Transaction, error) {
	tr := s.Tr()
	if err := p.openResponse(tr, threadID, ev.AIProvider); err != nil {
		return nil, err
	}
	markReceiving(tr, threadID, true)
	p.logger.Debug("Stream opened", "thread", threadID, "provider", ev.AIProvider)
	return tr, nil
}

func (p *ThreadPlugin) streamChunk(s *editor.State, threadID string, ev models.StreamEvent) (*doc.Transaction, error) {
	if ev.Segment == nil {
		return nil, nil
	}
	tr := s.Tr()
	match := p.locate(tr.Doc(), threadID)
	if !match.Found {
		p.logger.Debug("No response for chunk, creating one", "thread", threadID)
		if err := p.openResponse(tr, threadID, ev.AIProvider); err != nil {
			return nil, err
		}
		match = p.locate(tr.Doc(), threadID)
	}
	if !StreamStateOf(s).IsReceiving(threadID) {
		markReceiving(tr, threadID, true)
	}

	if err := thread.InsertSegment(tr, match, *ev.Segment); err != nil {
		p.logger.Warn("Dropping stream chunk",
			"thread", threadID,
			"type", ev.Segment.Type,
			"pos", match.EndOfNodePos,
			"error", err,
		)
	}
	return tr, nil
}

// endStream settles every response of the thread still flagged as rendering
// or receiving.
func (p *ThreadPlugin) endStream(s *editor.State, threadID string) (*doc.Transaction, error) {
	tr := s.Tr()
	for _, r := range thread.InitialRenderResponses(tr.Doc(), threadID) {
		if err := tr.SetNodeAttrs(r.Pos, doc.Attrs{
			models.AttrInitialRenderAnimation: false,
			models.AttrReceivingAnimation:     false,
		}); err != nil {
			return nil, err
		}
	}
	markReceiving(tr, threadID, false)
	p.logger.Debug("Stream settled", "thread", threadID)
	return tr, nil
}

func (p *ThreadPlugin) newResponse(provider string, content ...*doc.Node) *doc.Node {
	attrs := doc.Attrs{
		models.AttrResponseID:             p.opts.NewID(),
		models.AttrInitialRenderAnimation: true,
		models.AttrReceivingAnimation:     true,
	}
	if provider != "" {
		attrs[models.AttrAIProvider] = provider
	}
	return doc.Response(attrs, content...)
}

// openResponse adds a new receiving response at the thread's insertion point.
func (p *ThreadPlugin) openResponse(tr *doc.Transaction, threadID, provider string, content ...*doc.Node) error {
	point, ok := thread.FindThreadInsertionPoint(tr.Doc(), threadID, p.opts.RequireComposer)
	if !ok {
		return thread.ErrThreadNotFound
	}
	return tr.Insert(point.Pos, p.newResponse(provider, content...))
}

// ============================================================================
// Image generation sub-stream
// ============================================================================

type imageMatch struct {
	node *doc.Node
	pos  int
}

func (p *ThreadPlugin) handleImage(s *editor.State, threadID string, ev models.StreamEvent) (*doc.Transaction, error) {
	tr := s.Tr()
	img, found := findPartialImage(tr.Doc(), threadID, ev.ResponseID)

	if !found {
		node := doc.Image(partialImageAttrs(ev))
		open := p.locate(tr.Doc(), threadID)
		if open.Found && open.Node.AttrBool(models.AttrReceivingAnimation) {
			if err := tr.Insert(open.EndOfNodePos-1, node); err != nil {
				p.logger.Warn("Dropping image event", "thread", threadID, "type", ev.Type, "error", err)
				return nil, nil
			}
		} else {
			if err := p.openResponse(tr, threadID, ev.AIProvider, node); err != nil {
				return nil, err
			}
			markReceiving(tr, threadID, true)
		}
		if img, found = findPartialImage(tr.Doc(), threadID, ev.ResponseID); !found {
			return tr, nil
		}
		if ev.Type == models.StreamImagePartial {
			return tr, nil
		}
	}

	if ev.Type == models.StreamImagePartial {
		if err := tr.SetNodeAttrs(img.pos, partialImageAttrs(ev)); err != nil {
			return nil, err
		}
		return tr, nil
	}

	if err := tr.SetNodeAttrs(img.pos, completeImageAttrs(ev)); err != nil {
		return nil, err
	}
	if ev.RevisedPrompt != "" && !precededByPrompt(tr.Doc(), img.pos, ev.RevisedPrompt) {
		if err := tr.Insert(img.pos, doc.Paragraph(doc.Text(ev.RevisedPrompt))); err != nil {
			p.logger.Warn("Revised prompt not inserted", "thread", threadID, "error", err)
		}
	}
	return tr, nil
}

func partialImageAttrs(ev models.StreamEvent) doc.Attrs {
	attrs := doc.Attrs{models.AttrIsPartial: true}
	if ev.ImageURL != "" {
		attrs[models.AttrSrc] = ev.ImageURL
	}
	if ev.PartialIndex != nil {
		attrs[models.AttrPartialIndex] = *ev.PartialIndex
	}
	if ev.ResponseID != "" {
		attrs[models.AttrImageResponse] = ev.ResponseID
	}
	return attrs
}

func completeImageAttrs(ev models.StreamEvent) doc.Attrs {
	attrs := doc.Attrs{models.AttrIsPartial: false}
	set := func(key, value string) {
		if value != "" {
			attrs[key] = value
		}
	}
	set(models.AttrSrc, ev.ImageURL)
	set(models.AttrFileID, ev.FileID)
	set(models.AttrWorkspaceID, ev.WorkspaceID)
	set(models.AttrRevisedPrompt, ev.RevisedPrompt)
	set(models.AttrImageResponse, ev.ResponseID)
	set(models.AttrGeneratedBy, ev.AIProvider)
	return attrs
}

// findPartialImage returns the last partial image in the thread, restricted
// to images of responseID when one is given.
func findPartialImage(d *doc.Node, threadID, responseID string) (imageMatch, bool) {
	t, ok := thread.FindThread(d, threadID)
	if !ok {
		return imageMatch{}, false
	}
	var (
		match imageMatch
		found bool
	)
	t.Node.Descendants(func(n *doc.Node, pos int, _ *doc.Node, _ int) bool {
		if n.Kind() != doc.KindImage {
			return !n.IsTextblock()
		}
		if !n.AttrBool(models.AttrIsPartial) {
			return false
		}
		if responseID != "" {
			if id := n.AttrString(models.AttrImageResponse); id != "" && id != responseID {
				return false
			}
		}
		match = imageMatch{node: n, pos: t.Pos + 1 + pos}
		found = true
		return false
	})
	return match, found
}

// precededByPrompt reports whether the sibling directly before pos is a
// paragraph holding prompt.
func precededByPrompt(d *doc.Node, pos int, prompt string) bool {
	rp, err := d.Resolve(pos)
	if err != nil {
		return false
	}
	prev := rp.NodeBefore()
	return prev != nil && prev.Kind() == doc.KindParagraph && prev.TextContent() == prompt
}
