// Package llmtest provides an in-memory llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tandem-chat/backend/internal/llm"
)

type scripted struct {
	result *llm.CompletionResult
	err    error
}

// Fake is a scripted llm.Client. Results are consumed in FIFO order by both
// Complete and Stream; every request is recorded for later inspection.
type Fake struct {
	mu       sync.Mutex
	queue    []scripted
	requests []llm.Request

	Models    []llm.ModelInfo
	ModelsErr error

	// ModelCalls counts ListModels invocations.
	ModelCalls int
}

var _ llm.Client = (*Fake)(nil)

func New() *Fake { return &Fake{} }

// QueueText enqueues a successful completion with the given text.
func (f *Fake) QueueText(text string) {
	f.QueueResult(&llm.CompletionResult{Text: text})
}

// QueueResult enqueues a successful completion.
func (f *Fake) QueueResult(res *llm.CompletionResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, scripted{result: res})
}

// QueueError enqueues a failure for the next call.
func (f *Fake) QueueError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, scripted{err: err})
}

// Requests returns a copy of all recorded completion requests.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *Fake) next(req llm.Request) (scripted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.queue) == 0 {
		return scripted{}, fmt.Errorf("llmtest: no scripted result for request %d (model %s)", len(f.requests), req.Model)
	}
	s := f.queue[0]
	f.queue = f.queue[1:]
	return s, nil
}

func (f *Fake) Complete(ctx context.Context, req llm.Request) (*llm.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	if res.Model == "" {
		res.Model = req.Model
	}
	return &res, nil
}

func (f *Fake) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}

	var events []llm.StreamEvent
	if s.result.Reasoning != "" {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventReasoning, Delta: s.result.Reasoning})
	}
	if s.result.Text != "" {
		events = append(events, llm.StreamEvent{Type: llm.StreamEventContent, Delta: s.result.Text})
	}
	events = append(events, llm.StreamEvent{Type: llm.StreamEventDone})
	return &sliceStream{ctx: ctx, events: events}, nil
}

func (f *Fake) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ModelCalls++
	if f.ModelsErr != nil {
		return nil, f.ModelsErr
	}
	out := make([]llm.ModelInfo, len(f.Models))
	copy(out, f.Models)
	return out, nil
}

type sliceStream struct {
	ctx    context.Context
	events []llm.StreamEvent
	pos    int
	done   bool
}

func (s *sliceStream) Recv() (llm.StreamEvent, bool) {
	if s.done || s.pos >= len(s.events) {
		return llm.StreamEvent{}, false
	}
	if err := s.ctx.Err(); err != nil {
		s.done = true
		return llm.StreamEvent{Type: llm.StreamEventError, Message: err.Error()}, true
	}
	ev := s.events[s.pos]
	s.pos++
	if ev.Terminal() {
		s.done = true
	}
	return ev, true
}

func (s *sliceStream) Close() error {
	s.done = true
	return nil
}
