package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/models"
	"github.com/choraleia/threadwriter/pkg/segment"
	"github.com/choraleia/threadwriter/pkg/thread"
	"github.com/choraleia/threadwriter/pkg/utils"
)

var ErrModelNotConfigured = errors.New("model not configured")

// ModelResolver finds the stored configuration of a provider:model id.
type ModelResolver interface {
	FindModel(id string) (*models.ModelConfig, error)
}

// RunRecorder keeps the history of stream runs.
type RunRecorder interface {
	Start(r *db.StreamRun) error
	Finish(id, status, finishReason, errMsg string, segments int, usage *db.TokenUsage) error
}

// LLMSender is the send and stop handler backed by eino chat models. Model
// output is cut into segments and published as START/STREAMING/END events.
type LLMSender struct {
	resolver  ModelResolver
	factory   ChatModelFactory
	publisher event.Publisher
	runs      RunRecorder
	logger    *slog.Logger

	activeStreams sync.Map // threadID -> *senderStream
	wg            sync.WaitGroup
}

type senderStream struct {
	threadID  string
	cancel    context.CancelFunc
	startedAt time.Time
	done      chan struct{}
}

func NewLLMSender(resolver ModelResolver, factory ChatModelFactory, publisher event.Publisher) *LLMSender {
	return &LLMSender{
		resolver:  resolver,
		factory:   factory,
		publisher: publisher,
		logger:    utils.GetLogger().With("component", "llm-sender"),
	}
}

// WithRunRecorder makes the sender record every run it streams.
func (s *LLMSender) WithRunRecorder(runs RunRecorder) *LLMSender {
	s.runs = runs
	return s
}

// Send starts generating a reply for the thread. It returns once the model
// stream is opening; content arrives through the publisher. A running
// stream of the same thread is cancelled first, and the new one does not
// publish START_STREAM before the old one has published END_STREAM.
func (s *LLMSender) Send(ctx context.Context, req models.SendRequest) error {
	cfg, err := s.resolver.FindModel(req.AIModel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelNotConfigured, err)
	}
	chatModel, err := s.factory(ctx, cfg)
	if err != nil {
		return err
	}
	if req.ImageOptions != nil && req.ImageOptions.ImageGenerationEnabled {
		s.logger.Debug("Image generation is left to the upstream transport", "thread", req.ThreadID)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream := &senderStream{threadID: req.ThreadID, cancel: cancel, startedAt: time.Now(), done: make(chan struct{})}
	var prev *senderStream
	if v, loaded := s.activeStreams.Swap(req.ThreadID, stream); loaded {
		prev = v.(*senderStream)
		prev.cancel()
	}

	messages := thread.ToSchemaMessages(req.Messages)
	rec := &db.StreamRun{ID: uuid.NewString(), ThreadID: req.ThreadID, Provider: cfg.Provider, Model: cfg.Model, StartedAt: stream.startedAt}
	s.recordStart(rec)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(stream.done)
		defer cancel()
		defer s.activeStreams.CompareAndDelete(req.ThreadID, stream)
		if prev != nil {
			<-prev.done
		}
		out := s.run(streamCtx, req.ThreadID, cfg.Provider, func(ctx context.Context) (*schema.StreamReader[*schema.Message], error) {
			return chatModel.Stream(ctx, messages)
		})
		s.recordFinish(rec.ID, out)
	}()
	return nil
}

// Stop cancels the thread's running stream. The stream goroutine publishes
// END_STREAM as it winds down.
func (s *LLMSender) Stop(_ context.Context, req models.StopRequest) error {
	v, ok := s.activeStreams.Load(req.ThreadID)
	if !ok {
		return nil
	}
	s.logger.Info("Cancelling stream", "thread", req.ThreadID)
	v.(*senderStream).cancel()
	return nil
}

// IsStreaming reports whether the thread has a running stream.
func (s *LLMSender) IsStreaming(threadID string) bool {
	_, ok := s.activeStreams.Load(threadID)
	return ok
}

// Wait blocks until every running stream has finished.
func (s *LLMSender) Wait() { s.wg.Wait() }

// Shutdown cancels every running stream and waits for them.
func (s *LLMSender) Shutdown() {
	s.activeStreams.Range(func(_, v any) bool {
		v.(*senderStream).cancel()
		return true
	})
	s.wg.Wait()
}

func (s *LLMSender) publish(threadID string, ev models.StreamEvent) {
	ev.AIChatThreadID = threadID
	if err := s.publisher.Publish(context.Background(), ev); err != nil {
		s.logger.Warn("Failed to publish stream event", "thread", threadID, "status", ev.Status, "error", err)
	}
}

// runOutcome summarises a finished run.
type runOutcome struct {
	status       string
	finishReason string
	err          error
	segments     int
	usage        *db.TokenUsage
}

func (s *LLMSender) recordStart(r *db.StreamRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Start(r); err != nil {
		s.logger.Warn("Failed to record run", "thread", r.ThreadID, "error", err)
	}
}

func (s *LLMSender) recordFinish(id string, out runOutcome) {
	if s.runs == nil {
		return
	}
	var errMsg string
	if out.err != nil {
		errMsg = out.err.Error()
	}
	if err := s.runs.Finish(id, out.status, out.finishReason, errMsg, out.segments, out.usage); err != nil {
		s.logger.Warn("Failed to finish run", "run", id, "error", err)
	}
}

func (s *LLMSender) run(ctx context.Context, threadID, provider string, open func(context.Context) (*schema.StreamReader[*schema.Message], error)) (out runOutcome) {
	logger := s.logger.With("thread", threadID, "provider", provider)
	s.publish(threadID, models.StreamEvent{Status: models.StreamStart, AIProvider: provider})
	defer s.publish(threadID, models.StreamEvent{Status: models.StreamEnd, AIProvider: provider})

	seg := segment.NewSegmenter()
	emit := func(segs []models.StreamSegment) {
		out.segments += len(segs)
		for i := range segs {
			s.publish(threadID, models.StreamEvent{
				Status:     models.StreamStreaming,
				AIProvider: provider,
				Segment:    &segs[i],
			})
		}
	}

	reader, err := open(ctx)
	if err != nil {
		logger.Error("Failed to open model stream", "error", err)
		emit(segment.Parse(formatModelError(err)))
		out.status, out.err = db.RunError, err
		return
	}
	defer reader.Close()

	chunks := 0
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			emit(seg.Flush())
			if ctx.Err() != nil {
				logger.Info("Stream cancelled", "chunks", chunks)
				out.status = db.RunCancelled
				return
			}
			logger.Error("Model stream failed", "error", err, "chunks", chunks)
			emit(segment.Parse(formatModelError(err)))
			out.status, out.err = db.RunError, err
			return
		}
		if msg == nil {
			continue
		}
		if meta := msg.ResponseMeta; meta != nil {
			if meta.FinishReason != "" {
				out.finishReason = meta.FinishReason
			}
			if u := meta.Usage; u != nil {
				out.usage = &db.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
			}
		}
		if msg.Content == "" {
			continue
		}
		chunks++
		emit(seg.Write(msg.Content))
		if ctx.Err() != nil {
			emit(seg.Flush())
			logger.Info("Stream cancelled", "chunks", chunks)
			out.status = db.RunCancelled
			return
		}
	}
	emit(seg.Flush())
	logger.Debug("Stream finished", "chunks", chunks)
	out.status = db.RunCompleted
	return
}

// formatModelError converts model errors to user-friendly messages
func formatModelError(err error) string {
	errStr := err.Error()
	var msg string
	switch {
	case strings.Contains(errStr, "context canceled"):
		msg = "The request was cancelled."
	case strings.Contains(errStr, "context deadline exceeded"):
		msg = "The request timed out. Please try again."
	case strings.Contains(errStr, "rate limit"):
		msg = "Rate limit exceeded. Please wait a moment and try again."
	case strings.Contains(errStr, "insufficient_quota"):
		msg = "API quota exceeded. Please check your API key balance."
	case strings.Contains(errStr, "invalid_api_key"):
		msg = "Invalid API key. Please check your API key configuration."
	case strings.Contains(errStr, "model not found"):
		msg = "The selected model is not available. Please choose a different model."
	default:
		msg = "An error occurred while generating the response: " + errStr
	}
	return "**Error:** " + msg
}
