// Package turn drives the three-call conversation turn protocol: the teacher
// persona comments on the learner's message, the native-speaker persona
// replies, and the teacher persona comments on that reply.
package turn

import (
	"fmt"
	"time"

	"github.com/tandem-chat/backend/internal/prompts"
)

// Settings is the effective per-turn configuration, resolved by the caller
// and passed explicitly. Nothing in this package reads ambient state.
type Settings struct {
	Model       string
	Persona     prompts.Persona
	Streaming   bool
	Reasoning   bool
	Temperature float64
	MaxTokens   int
}

// StepResult is one finalized actor completion.
type StepResult struct {
	Step        int
	Role        prompts.Role
	MessageType prompts.MessageType

	Text      string
	Reasoning string
	Model     string

	GenerationTimeMs int64
	StartedAt        time.Time
	FinishedAt       time.Time
}

// EventType tags one event of a running turn.
type EventType string

const (
	EventStepStart      EventType = "step.start"
	EventContentDelta   EventType = "content.delta"
	EventReasoningDelta EventType = "reasoning.delta"
	EventStepDone       EventType = "step.done"
	EventTurnDone       EventType = "turn.done"
	EventTurnError      EventType = "turn.error"
	EventTurnCancelled  EventType = "turn.cancelled"
)

// Event is one item of the turn's outward event sequence. Zero or more
// step/delta events are followed by exactly one terminal event, after which
// the channel is closed.
type Event struct {
	Type        EventType
	Step        int
	Role        prompts.Role
	MessageType prompts.MessageType

	// Delta carries streamed text for content.delta and reasoning.delta.
	Delta string

	// Result is set on step.done.
	Result *StepResult

	// Err is set on turn.error.
	Err error
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventTurnDone, EventTurnError, EventTurnCancelled:
		return true
	}
	return false
}

// Error attributes a failure to the step it occurred in.
type Error struct {
	Step        int
	MessageType prompts.MessageType
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("turn step %d (%s): %v", e.Step, e.MessageType, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
