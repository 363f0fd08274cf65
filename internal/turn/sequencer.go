package turn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tandem-chat/backend/internal/attachments"
	"github.com/tandem-chat/backend/internal/catalog"
	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/platform/logger"
	"github.com/tandem-chat/backend/internal/prompts"
)

// Input is everything one turn needs: the learner's raw text, their uploaded
// attachments, and the conversation so far.
type Input struct {
	Text     string
	Files    []attachments.FileRef
	History  []prompts.HistoryEntry
	Settings Settings
}

// Sequencer runs turns against an upstream client, consulting the model
// catalog before any multimodal send.
type Sequencer struct {
	client  llm.Client
	catalog *catalog.Provider
	log     *logger.Logger
}

func NewSequencer(client llm.Client, cat *catalog.Provider, log *logger.Logger) *Sequencer {
	return &Sequencer{client: client, catalog: cat, log: log}
}

type step struct {
	role        prompts.Role
	messageType prompts.MessageType
	attach      bool
}

// The three states, in order. Attachments are visible to the first two calls
// only: the final call critiques the persona's text, not the original image.
var steps = []step{
	{role: prompts.RoleEditorMate, messageType: prompts.MessageTypeEditorMateUserComment, attach: true},
	{role: prompts.RoleChatMate, messageType: prompts.MessageTypeChatMateResponse, attach: true},
	{role: prompts.RoleEditorMate, messageType: prompts.MessageTypeEditorMateChatMateComment, attach: false},
}

// RunTurn executes the three calls strictly in sequence and returns their
// event stream: step/delta events followed by exactly one terminal event,
// after which the channel is closed. The consumer must drain the channel.
// Cancelling ctx aborts the in-flight call only; step.done events already
// emitted stand.
func (s *Sequencer) RunTurn(ctx context.Context, in Input) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		s.run(ctx, in, out)
	}()
	return out
}

func (s *Sequencer) run(ctx context.Context, in Input, out chan<- Event) {
	resolved := attachments.Resolve(in.Text, in.Files)
	guard := catalog.NewGuard(s.catalog)

	// Rolling in-memory history: each step sees the previous steps' output
	// without waiting for storage.
	history := make([]prompts.HistoryEntry, len(in.History))
	copy(history, in.History)

	var chatMateReply string
	chatMateReplyIdx := -1
	for i, st := range steps {
		stepNo := i + 1

		if ctx.Err() != nil {
			s.emitCancelled(out, stepNo, st)
			return
		}

		if err := guard.Ensure(ctx, in.Settings.Model, st.attach && resolved.HasImages()); err != nil {
			s.emitFailure(ctx, out, stepNo, st, err)
			return
		}

		out <- Event{Type: EventStepStart, Step: stepNo, Role: st.role, MessageType: st.messageType}

		subject, stepHistory := stepMaterial(st, resolved, history, chatMateReply, chatMateReplyIdx)
		built, err := prompts.Build(st.messageType, in.Settings.Persona, stepHistory)
		if err != nil {
			s.emitFailure(ctx, out, stepNo, st, err)
			return
		}

		req := llm.Request{
			Model:       in.Settings.Model,
			Messages:    outboundMessages(built, subject),
			Temperature: in.Settings.Temperature,
			MaxTokens:   in.Settings.MaxTokens,
			Reasoning:   in.Settings.Reasoning,
		}

		started := time.Now()
		res, err := s.call(ctx, req, in.Settings.Streaming, out, stepNo, st)
		if err != nil {
			s.emitFailure(ctx, out, stepNo, st, err)
			return
		}
		finished := time.Now()

		result := &StepResult{
			Step:             stepNo,
			Role:             st.role,
			MessageType:      st.messageType,
			Text:             res.Text,
			Reasoning:        res.Reasoning,
			Model:            res.Model,
			GenerationTimeMs: finished.Sub(started).Milliseconds(),
			StartedAt:        started,
			FinishedAt:       finished,
		}
		if result.Model == "" {
			result.Model = in.Settings.Model
		}
		out <- Event{Type: EventStepDone, Step: stepNo, Role: st.role, MessageType: st.messageType, Result: result}

		history = append(history, prompts.HistoryEntry{Role: st.role, Content: res.Text, Type: st.messageType})
		if st.messageType == prompts.MessageTypeChatMateResponse {
			chatMateReply = res.Text
			chatMateReplyIdx = len(history) - 1
		}
	}

	out <- Event{Type: EventTurnDone}
}

// stepMaterial decides what the model is asked about and which prior messages
// it sees for one step.
func stepMaterial(st step, resolved attachments.Resolved, history []prompts.HistoryEntry, chatMateReply string, chatMateReplyIdx int) (llm.Message, []prompts.HistoryEntry) {
	if st.messageType != prompts.MessageTypeEditorMateChatMateComment {
		return resolved.Message("user"), history
	}

	// The final step's subject is the persona's reply. Its history drops the
	// teacher's own commentary and title chatter, and carries the learner's
	// message as plain text.
	filtered := make([]prompts.HistoryEntry, 0, len(history)+1)
	for i, h := range history {
		switch h.Type {
		case prompts.MessageTypeEditorMateUserComment, prompts.MessageTypeTitleGeneration:
			continue
		}
		if i == chatMateReplyIdx {
			// The reply being critiqued is the subject, not history.
			continue
		}
		filtered = append(filtered, h)
	}
	filtered = append(filtered, prompts.HistoryEntry{Role: prompts.RoleUser, Content: resolved.Text})

	return llm.Message{Role: "user", Content: chatMateReply}, filtered
}

func outboundMessages(built prompts.Built, subject llm.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(built.History)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: built.System})
	msgs = append(msgs, built.History...)
	msgs = append(msgs, subject)
	return msgs
}

func (s *Sequencer) call(ctx context.Context, req llm.Request, streaming bool, out chan<- Event, stepNo int, st step) (*llm.CompletionResult, error) {
	if !streaming {
		return s.client.Complete(ctx, req)
	}

	req.Stream = true
	stream, err := s.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return llm.Assemble(stream, func(ev llm.StreamEvent) {
		switch ev.Type {
		case llm.StreamEventContent:
			out <- Event{Type: EventContentDelta, Step: stepNo, Role: st.role, MessageType: st.messageType, Delta: ev.Delta}
		case llm.StreamEventReasoning:
			out <- Event{Type: EventReasoningDelta, Step: stepNo, Role: st.role, MessageType: st.messageType, Delta: ev.Delta}
		}
	})
}

func (s *Sequencer) emitFailure(ctx context.Context, out chan<- Event, stepNo int, st step, err error) {
	if isCancellation(ctx, err) {
		s.emitCancelled(out, stepNo, st)
		return
	}
	s.log.Warn("turn step failed", "step", stepNo, "message_type", string(st.messageType), "error", err)
	out <- Event{
		Type:        EventTurnError,
		Step:        stepNo,
		Role:        st.role,
		MessageType: st.messageType,
		Err:         &Error{Step: stepNo, MessageType: st.messageType, Err: err},
	}
}

func (s *Sequencer) emitCancelled(out chan<- Event, stepNo int, st step) {
	s.log.Info("turn cancelled", "step", stepNo, "message_type", string(st.messageType))
	out <- Event{Type: EventTurnCancelled, Step: stepNo, Role: st.role, MessageType: st.messageType}
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	// A stream torn down by cancellation surfaces the context message.
	var serr *llm.StreamError
	if errors.As(err, &serr) {
		return strings.Contains(serr.Message, context.Canceled.Error())
	}
	return false
}
