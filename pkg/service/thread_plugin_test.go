package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choraleia/threadwriter/pkg/doc"
	"github.com/choraleia/threadwriter/pkg/editor"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/thread"
)

// collaborators records every call the plugin makes to the outside.
type collaborators struct {
	mu        sync.Mutex
	sent      []models.SendRequest
	stopped   []models.StopRequest
	dirty     int
	prompts   []string
	available []models.AvailableModel
}

func (c *collaborators) Send(_ context.Context, req models.SendRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return nil
}

func (c *collaborators) Stop(_ context.Context, req models.StopRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, req)
	return nil
}

func (c *collaborators) NotifyDirty(models.DirtyState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty++
}

func (c *collaborators) AvailableModels() []models.AvailableModel { return c.available }

func (c *collaborators) Prompt(msg string) { c.prompts = append(c.prompts, msg) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type harness struct {
	editor  *editor.Editor
	plugin  *ThreadPlugin
	collab  *collaborators
	emitter *event.Emitter
}

func newHarness(t *testing.T, d *doc.Node, requireComposer bool, emitter *event.Emitter) *harness {
	t.Helper()
	if emitter == nil {
		emitter = event.NewEmitter()
	}
	collab := &collaborators{
		available: []models.AvailableModel{
			{Provider: "openai", Model: "gpt-4o", ShortTitle: "GPT-4o"},
			{Provider: "anthropic", Model: "claude-sonnet", ShortTitle: "Sonnet"},
		},
	}
	p := NewThreadPlugin(ThreadPluginOptions{
		DocumentID:      "doc-" + t.Name(),
		RequireComposer: requireComposer,
		Emitter:         emitter,
		Sender:          collab,
		Stopper:         collab,
		Dirty:           collab,
		Catalog:         collab,
		Prompter:        collab,
		NewID:           sequentialIDs(),
	})
	e, err := editor.New("doc-"+t.Name(), editor.NewState(d, p))
	require.NoError(t, err)
	t.Cleanup(e.Destroy)
	return &harness{editor: e, plugin: p, collab: collab, emitter: emitter}
}

func (h *harness) emit(ev models.StreamEvent) {
	h.emitter.Emit(event.StreamEvent{StreamEvent: ev})
}

func (h *harness) thread(t *testing.T, id string) *doc.Node {
	t.Helper()
	m, ok := thread.FindThread(h.editor.State().Doc(), id)
	require.True(t, ok, "thread %s", id)
	return m.Node
}

func threadAttrs(id string) doc.Attrs {
	return doc.Attrs{models.AttrThreadID: id, models.AttrAIModel: "openai:gpt-4o"}
}

func chatThread(id string, children ...*doc.Node) *doc.Node {
	return doc.Thread(threadAttrs(id), append(children, doc.Composer(doc.Paragraph()))...)
}

func paragraphSegment(text string) *models.StreamSegment {
	return &models.StreamSegment{Segment: text, Type: models.SegmentParagraph, IsBlockDefining: true}
}

func TestStreamLifecycle(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)

	var receiving []bool
	h.emitter.On(event.ThreadReceiving, func(ev event.Event) {
		receiving = append(receiving, ev.(event.ThreadReceivingEvent).Receiving)
	})

	h.emit(models.StreamEvent{Status: models.StreamStart, ThreadID: "t1", AIProvider: "openai"})

	th := h.thread(t, "t1")
	require.Equal(t, 2, th.ChildCount())
	resp := th.Child(0)
	assert.Equal(t, doc.KindResponse, resp.Kind())
	assert.True(t, resp.AttrBool(models.AttrInitialRenderAnimation))
	assert.True(t, resp.AttrBool(models.AttrReceivingAnimation))
	assert.Equal(t, "openai", resp.AttrString(models.AttrAIProvider))
	assert.Equal(t, "id-1", resp.AttrString(models.AttrResponseID))

	st := StreamStateOf(h.editor.State())
	assert.True(t, st.IsReceiving("t1"))
	require.Len(t, st.Decorations(), 1)
	assert.Equal(t, "t1", st.Decorations()[0].ThreadID)

	h.emit(models.StreamEvent{Status: models.StreamStreaming, AIChatThreadID: "t1", Segment: paragraphSegment("Hello")})
	h.emit(models.StreamEvent{Status: models.StreamStreaming, AIChatThreadID: "t1", Segment: &models.StreamSegment{
		Segment: " world", Type: models.SegmentText, Styles: []string{"bold"},
	}})

	th = h.thread(t, "t1")
	assert.Equal(t, "Hello world", th.Child(0).TextContent())
	assert.Equal(t, doc.KindComposer, th.LastChild().Kind())

	m := thread.FindResponseNode(h.editor.State().Doc(), "t1")
	require.True(t, m.Found)
	assert.Equal(t, m.Pos, StreamStateOf(h.editor.State()).Decorations()[0].From)
	assert.Equal(t, m.EndOfNodePos, StreamStateOf(h.editor.State()).Decorations()[0].To)

	h.emit(models.StreamEvent{Status: models.StreamEnd, ThreadID: "t1"})

	th = h.thread(t, "t1")
	resp = th.Child(0)
	assert.False(t, resp.AttrBool(models.AttrInitialRenderAnimation))
	assert.False(t, resp.AttrBool(models.AttrReceivingAnimation))
	assert.Empty(t, thread.InitialRenderResponses(h.editor.State().Doc(), "t1"))
	assert.False(t, StreamStateOf(h.editor.State()).IsReceiving("t1"))
	assert.Empty(t, StreamStateOf(h.editor.State()).Decorations())
	assert.Equal(t, []bool{true, false}, receiving)
}

func TestEndStreamSettlesOnlyTargetThread(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1"), chatThread("t2")), true, nil)

	h.emit(models.StreamEvent{Status: models.StreamStart, ThreadID: "t1"})
	h.emit(models.StreamEvent{Status: models.StreamStart, ThreadID: "t2"})
	h.emit(models.StreamEvent{Status: models.StreamEnd, ThreadID: "t2"})

	d := h.editor.State().Doc()
	assert.Len(t, thread.InitialRenderResponses(d, "t1"), 1)
	assert.Empty(t, thread.InitialRenderResponses(d, "t2"))
	assert.Equal(t, []string{"t1"}, StreamStateOf(h.editor.State()).ReceivingThreadIDs())
}

func TestStreamingWithoutStartCreatesResponse(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)

	h.emit(models.StreamEvent{Status: models.StreamStreaming, ThreadID: "t1", Segment: paragraphSegment("Hi")})

	th := h.thread(t, "t1")
	require.Equal(t, 2, th.ChildCount())
	assert.Equal(t, doc.KindResponse, th.Child(0).Kind())
	assert.Equal(t, "Hi", th.Child(0).TextContent())
	assert.True(t, StreamStateOf(h.editor.State()).IsReceiving("t1"))

	// A chunk without a segment changes nothing.
	before := h.editor.State()
	h.emit(models.StreamEvent{Status: models.StreamStreaming, ThreadID: "t1"})
	assert.Same(t, before, h.editor.State())
}

func TestForeignThreadEventsAreIgnored(t *testing.T) {
	emitter := event.NewEmitter()
	a := newHarness(t, doc.Doc(chatThread("a")), true, emitter)
	b := newHarness(t, doc.Doc(chatThread("b")), true, emitter)

	before := b.editor.State()
	for _, ev := range []models.StreamEvent{
		{Status: models.StreamStart, ThreadID: "a"},
		{Status: models.StreamStreaming, ThreadID: "a", Segment: paragraphSegment("only a")},
		{Type: models.StreamImagePartial, ThreadID: "a", ImageURL: "data:x"},
		{Status: models.StreamEnd, ThreadID: "a"},
	} {
		emitter.Emit(event.StreamEvent{StreamEvent: ev})
	}

	assert.Same(t, before, b.editor.State())
	assert.Equal(t, "only a", a.thread(t, "a").Child(0).TextContent())
}

func TestHandleStreamEventRequiresThreadID(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	err := h.plugin.HandleStreamEvent(models.StreamEvent{Status: models.StreamStart})
	assert.ErrorIs(t, err, ErrMissingThreadID)

	detached := NewThreadPlugin(ThreadPluginOptions{DocumentID: "x"})
	assert.ErrorIs(t, detached.HandleStreamEvent(models.StreamEvent{ThreadID: "t1"}), ErrNotAttached)
}

func TestChunkDroppedWhenPositionIsStale(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	h.emit(models.StreamEvent{Status: models.StreamStart, ThreadID: "t1"})
	stale := thread.FindResponseNode(h.editor.State().Doc(), "t1")
	require.True(t, stale.Found)

	// A user edit moves the response after the match was taken.
	require.NoError(t, h.editor.Update(func(s *editor.State) (*doc.Transaction, error) {
		tr := s.Tr()
		err := tr.Insert(stale.Pos, doc.UserMessage(nil, doc.Paragraph(doc.Text("typed"))))
		return tr, err
	}))
	h.plugin.locate = func(*doc.Node, string) thread.ResponseMatch { return stale }

	before := h.editor.State().Doc()
	assert.NotPanics(t, func() {
		err := h.plugin.HandleStreamEvent(models.StreamEvent{
			Status: models.StreamStreaming, ThreadID: "t1", Segment: paragraphSegment("late"),
		})
		assert.NoError(t, err)
	})
	assert.True(t, before.Equal(h.editor.State().Doc()))

	// The next chunk resolves again and lands in the response.
	h.plugin.locate = thread.FindResponseNode
	require.NoError(t, h.plugin.HandleStreamEvent(models.StreamEvent{
		Status: models.StreamStreaming, ThreadID: "t1", Segment: paragraphSegment("next"),
	}))
	m := thread.FindResponseNode(h.editor.State().Doc(), "t1")
	assert.Equal(t, "next", m.Node.TextContent())
}

func TestImageSubStream(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	idx := func(i int) *int { return &i }

	h.emit(models.StreamEvent{Type: models.StreamImagePartial, ThreadID: "t1", ImageURL: "data:1", PartialIndex: idx(0)})

	th := h.thread(t, "t1")
	require.Equal(t, 2, th.ChildCount())
	resp := th.Child(0)
	require.Equal(t, doc.KindResponse, resp.Kind())
	assert.True(t, resp.AttrBool(models.AttrReceivingAnimation))
	require.Equal(t, 1, resp.ChildCount())
	assert.True(t, resp.Child(0).AttrBool(models.AttrIsPartial))
	assert.True(t, StreamStateOf(h.editor.State()).IsReceiving("t1"))

	h.emit(models.StreamEvent{Type: models.StreamImagePartial, ThreadID: "t1", ImageURL: "data:2", PartialIndex: idx(1)})

	resp = h.thread(t, "t1").Child(0)
	require.Equal(t, 1, resp.ChildCount())
	assert.Equal(t, "data:2", resp.Child(0).AttrString(models.AttrSrc))
	assert.Equal(t, 1, resp.Child(0).AttrInt(models.AttrPartialIndex))

	complete := models.StreamEvent{
		Type:          models.StreamImageComplete,
		ThreadID:      "t1",
		ImageURL:      "https://cdn/img.png",
		FileID:        "f1",
		WorkspaceID:   "w1",
		ResponseID:    "r1",
		RevisedPrompt: "a cat on a mat",
		AIProvider:    "openai",
	}
	h.emit(complete)

	resp = h.thread(t, "t1").Child(0)
	require.Equal(t, 2, resp.ChildCount())
	assert.Equal(t, "a cat on a mat", resp.Child(0).TextContent())
	img := resp.Child(1)
	assert.False(t, img.AttrBool(models.AttrIsPartial))
	assert.Equal(t, "f1", img.AttrString(models.AttrFileID))
	assert.Equal(t, "w1", img.AttrString(models.AttrWorkspaceID))
	assert.Equal(t, "r1", img.AttrString(models.AttrImageResponse))
	assert.Equal(t, "openai", img.AttrString(models.AttrGeneratedBy))
	assert.Equal(t, "a cat on a mat", img.AttrString(models.AttrRevisedPrompt))

	h.emit(models.StreamEvent{Status: models.StreamEnd, ThreadID: "t1"})
	assert.False(t, StreamStateOf(h.editor.State()).IsReceiving("t1"))
}

func TestImageCompleteWithoutPartial(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	h.emit(models.StreamEvent{Status: models.StreamStart, ThreadID: "t1"})
	h.emit(models.StreamEvent{Status: models.StreamStreaming, ThreadID: "t1", Segment: paragraphSegment("Here it is")})
	h.emit(models.StreamEvent{Type: models.StreamImageComplete, ThreadID: "t1", FileID: "f9", WorkspaceID: "w9"})

	th := h.thread(t, "t1")
	require.Equal(t, 2, th.ChildCount())
	resp := th.Child(0)
	require.Equal(t, 2, resp.ChildCount())
	assert.Equal(t, doc.KindImage, resp.Child(1).Kind())
	assert.Equal(t, "f9", resp.Child(1).AttrString(models.AttrFileID))
	assert.False(t, resp.Child(1).AttrBool(models.AttrIsPartial))
}

func TestFilterRejectsChildlessThread(t *testing.T) {
	d := doc.Doc(doc.Thread(threadAttrs("t1"), doc.Paragraph(doc.Text("x"))))
	h := newHarness(t, d, false, nil)

	// thread 0, paragraph 1..4
	err := h.editor.Update(func(s *editor.State) (*doc.Transaction, error) {
		tr := s.Tr()
		return tr, tr.Delete(1, 4)
	})
	assert.ErrorIs(t, err, editor.ErrTransactionRejected)
	assert.Equal(t, 1, h.thread(t, "t1").ChildCount())
}

func TestRepairRestoresComposer(t *testing.T) {
	d := doc.Doc(chatThread("t1", doc.UserMessage(nil, doc.Paragraph(doc.Text("hi")))))
	h := newHarness(t, d, true, nil)

	// thread 0, user message 1..7, composer 7..11
	require.NoError(t, h.editor.Update(func(s *editor.State) (*doc.Transaction, error) {
		tr := s.Tr()
		return tr, tr.Delete(7, 11)
	}))

	th := h.thread(t, "t1")
	require.Equal(t, 2, th.ChildCount())
	assert.Equal(t, doc.KindUserMessage, th.Child(0).Kind())
	assert.Equal(t, doc.KindComposer, th.LastChild().Kind())
}

func TestRepairDocument(t *testing.T) {
	p := NewThreadPlugin(ThreadPluginOptions{DocumentID: "d", RequireComposer: true, NewID: sequentialIDs()})
	d := doc.Doc(
		doc.Paragraph(doc.Text("intro")),
		doc.Thread(nil,
			doc.NewOther("aiChatThreadControls", nil),
			doc.Composer(doc.Paragraph(doc.Text("draft"))),
			doc.Paragraph(doc.Text("p")),
			doc.NewOther("aiChatThreadStatus", nil),
		),
		doc.Thread(doc.Attrs{models.AttrThreadID: "t2"}),
	)

	repaired, changed, err := p.RepairDocument(d)
	require.NoError(t, err)
	assert.True(t, changed)

	threads := thread.Threads(repaired)
	require.Len(t, threads, 2)

	first := threads[0].Node
	assert.Equal(t, "id-1", first.AttrString(models.AttrThreadID))
	require.Equal(t, 2, first.ChildCount())
	assert.Equal(t, doc.KindParagraph, first.Child(0).Kind())
	assert.Equal(t, doc.KindComposer, first.Child(1).Kind())
	assert.Equal(t, "draft", first.Child(1).TextContent())

	second := threads[1].Node
	require.Equal(t, 1, second.ChildCount())
	assert.Equal(t, doc.KindComposer, second.Child(0).Kind())

	again, changed, err := p.RepairDocument(repaired)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, again.Equal(repaired))
}

func TestRepairWithoutComposer(t *testing.T) {
	p := NewThreadPlugin(ThreadPluginOptions{DocumentID: "d", NewID: sequentialIDs()})
	d := doc.Doc(doc.Thread(doc.Attrs{models.AttrThreadID: "t1"}, doc.NewOther("aiChatThreadStatus", nil)))

	repaired, changed, err := p.RepairDocument(d)
	require.NoError(t, err)
	assert.True(t, changed)
	th := repaired.FirstChild()
	require.Equal(t, 1, th.ChildCount())
	assert.Equal(t, doc.KindParagraph, th.Child(0).Kind())
}

func TestSelectDropdown(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	// thread 0..6; 1 is inside it, 6 is after it
	inside := 1

	tests := []struct {
		name      string
		sel       DropdownSelection
		wantErr   error
		wantDirty int
		check     func(t *testing.T, th *doc.Node)
	}{
		{
			name:      "same model is a no-op",
			sel:       DropdownSelection{DropdownID: DropdownModel, Option: "openai:gpt-4o", NodePos: inside},
			wantDirty: 0,
		},
		{
			name:      "model by short title",
			sel:       DropdownSelection{DropdownID: DropdownModel, Option: "Sonnet", NodePos: inside},
			wantDirty: 1,
			check: func(t *testing.T, th *doc.Node) {
				assert.Equal(t, "anthropic:claude-sonnet", th.AttrString(models.AttrAIModel))
			},
		},
		{
			name:    "unknown model",
			sel:     DropdownSelection{DropdownID: DropdownModel, Option: "nope", NodePos: inside},
			wantErr: ErrUnknownModel, wantDirty: 1,
		},
		{
			name:      "context",
			sel:       DropdownSelection{DropdownID: DropdownContext, Option: "Workspace", NodePos: inside},
			wantDirty: 2,
			check: func(t *testing.T, th *doc.Node) {
				assert.Equal(t, "Workspace", th.AttrString(models.AttrThreadContext))
			},
		},
		{
			name:    "invalid context",
			sel:     DropdownSelection{DropdownID: DropdownContext, Option: "Galaxy", NodePos: inside},
			wantErr: ErrInvalidOption, wantDirty: 2,
		},
		{
			name:      "workspace selected",
			sel:       DropdownSelection{DropdownID: DropdownWorkspaceSelected, Option: "true", NodePos: inside},
			wantDirty: 3,
			check: func(t *testing.T, th *doc.Node) {
				assert.True(t, th.AttrBool(models.AttrWorkspaceSelected))
			},
		},
		{
			name:      "workspace selected again",
			sel:       DropdownSelection{DropdownID: DropdownWorkspaceSelected, Option: "true", NodePos: inside},
			wantDirty: 3,
		},
		{
			name:      "image size",
			sel:       DropdownSelection{DropdownID: DropdownImageSize, Option: "1024x1024", NodePos: inside},
			wantDirty: 4,
			check: func(t *testing.T, th *doc.Node) {
				assert.Equal(t, "1024x1024", th.AttrString(models.AttrImageSize))
			},
		},
		{
			name:    "unknown dropdown",
			sel:     DropdownSelection{DropdownID: "color", Option: "red", NodePos: inside},
			wantErr: ErrUnknownDropdown, wantDirty: 4,
		},
		{
			name:    "outside any thread",
			sel:     DropdownSelection{DropdownID: DropdownModel, Option: "Sonnet", NodePos: 6},
			wantErr: thread.ErrThreadNotFound, wantDirty: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.editor.State()
			err := h.plugin.SelectDropdown(tt.sel)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantDirty, h.collab.dirty)
			if tt.check != nil {
				tt.check(t, h.thread(t, "t1"))
			} else {
				assert.Same(t, before, h.editor.State())
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	d := doc.Doc(doc.Thread(threadAttrs("t1"),
		doc.UserMessage(nil, doc.Paragraph(doc.Text("hello"))),
		doc.Response(nil, doc.Paragraph(doc.Text("world"))),
		doc.Composer(doc.Paragraph(doc.Text("again"))),
	))
	h := newHarness(t, d, true, nil)

	require.NoError(t, h.plugin.Submit(context.Background(), SubmitRequest{ThreadID: "t1"}))

	require.Len(t, h.collab.sent, 1)
	req := h.collab.sent[0]
	assert.Equal(t, "t1", req.ThreadID)
	assert.Equal(t, "openai:gpt-4o", req.AIModel)
	assert.Nil(t, req.ImageOptions)
	assert.Equal(t, []models.ChatCompletionMessage{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "world"},
		{Role: models.RoleUser, Content: "again"},
	}, req.Messages)

	th := h.thread(t, "t1")
	require.Equal(t, 4, th.ChildCount())
	assert.Equal(t, doc.KindUserMessage, th.Child(2).Kind())
	assert.Equal(t, "again", th.Child(2).TextContent())
	assert.Equal(t, doc.KindComposer, th.Child(3).Kind())
	assert.Equal(t, "", th.Child(3).TextContent())

	rp, err := h.editor.State().Doc().Resolve(h.editor.State().Selection())
	require.NoError(t, err)
	assert.Equal(t, doc.KindComposer, rp.Node(rp.Depth()-1).Kind())
}

func TestSubmitWithImageGeneration(t *testing.T) {
	attrs := threadAttrs("t1")
	attrs[models.AttrImageGeneration] = true
	attrs[models.AttrImageSize] = "1024x1024"
	d := doc.Doc(doc.Thread(attrs, doc.Composer(doc.Paragraph(doc.Text("draw a cat")))))
	h := newHarness(t, d, true, nil)

	pos := 0
	require.NoError(t, h.plugin.Submit(context.Background(), SubmitRequest{NodePos: &pos}))
	require.Len(t, h.collab.sent, 1)
	assert.Equal(t, &models.ImageOptions{ImageGenerationEnabled: true, ImageGenerationSize: "1024x1024"},
		h.collab.sent[0].ImageOptions)
}

func TestSubmitRejectsMissingModel(t *testing.T) {
	d := doc.Doc(doc.Thread(doc.Attrs{models.AttrThreadID: "t1"}, doc.Composer(doc.Paragraph(doc.Text("hi")))))
	h := newHarness(t, d, true, nil)
	before := h.editor.State()

	err := h.plugin.Submit(context.Background(), SubmitRequest{ThreadID: "t1"})
	assert.ErrorIs(t, err, ErrNoModelSelected)
	assert.Len(t, h.collab.prompts, 1)
	assert.Empty(t, h.collab.sent)
	assert.Same(t, before, h.editor.State())
}

func TestSubmitNothingToSend(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	err := h.plugin.Submit(context.Background(), SubmitRequest{ThreadID: "t1"})
	assert.ErrorIs(t, err, ErrNothingToSend)

	err = h.plugin.Submit(context.Background(), SubmitRequest{ThreadID: "missing"})
	assert.ErrorIs(t, err, thread.ErrThreadNotFound)
}

func TestStop(t *testing.T) {
	h := newHarness(t, doc.Doc(chatThread("t1")), true, nil)
	require.NoError(t, h.plugin.Stop(context.Background(), "t1"))
	assert.Equal(t, []models.StopRequest{{ThreadID: "t1"}}, h.collab.stopped)
	assert.ErrorIs(t, h.plugin.Stop(context.Background(), "t9"), thread.ErrThreadNotFound)
}

func TestInsertThread(t *testing.T) {
	d := doc.Doc(doc.Paragraph(doc.Text("ab")), chatThread("t1"))
	h := newHarness(t, d, true, nil)

	// paragraph 0..4, thread t1 4..10
	cursor := 1
	id, err := h.plugin.InsertThread(&cursor)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, []string{"id-1", "t1"}, thread.ThreadIDs(h.editor.State().Doc()))
	assert.Equal(t, 7, h.editor.State().Selection())

	th := h.thread(t, id)
	assert.Equal(t, string(models.ContextThread), th.AttrString(models.AttrThreadContext))
	assert.Equal(t, doc.KindComposer, th.LastChild().Kind())

	// The cursor now sits in the new thread; the next one goes after it.
	id2, err := h.plugin.InsertThread(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1", id2, "t1"}, thread.ThreadIDs(h.editor.State().Doc()))
}

func TestInsertThreadWithoutComposer(t *testing.T) {
	h := newHarness(t, doc.Doc(doc.Paragraph(doc.Text("ab"))), false, nil)
	cursor := 2
	id, err := h.plugin.InsertThread(&cursor)
	require.NoError(t, err)
	th := h.thread(t, id)
	require.Equal(t, 1, th.ChildCount())
	assert.Equal(t, doc.KindParagraph, th.Child(0).Kind())
	assert.Equal(t, 6, h.editor.State().Selection())
}

func TestAutoAssignModel(t *testing.T) {
	d := doc.Doc(doc.Thread(doc.Attrs{models.AttrThreadID: "t1"}, doc.Composer(doc.Paragraph())))
	h := newHarness(t, d, true, nil)

	got, err := h.plugin.AutoAssignModel("t1")
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o", got)
	assert.Equal(t, 1, h.collab.dirty)

	got, err = h.plugin.AutoAssignModel("t1")
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o", got)
	assert.Equal(t, 1, h.collab.dirty)

	h.collab.available = nil
	_, err = h.plugin.InsertThread(nil)
	require.NoError(t, err)
	_, err = h.plugin.AutoAssignModel("id-1")
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}

func TestDetachUnsubscribes(t *testing.T) {
	emitter := event.NewEmitter()
	h := newHarness(t, doc.Doc(chatThread("t1")), true, emitter)
	assert.Equal(t, 1, emitter.ListenerCount(event.AIStream))

	h.editor.Destroy()
	assert.Equal(t, 0, emitter.ListenerCount(event.AIStream))
	assert.Nil(t, h.plugin.Editor())
}
