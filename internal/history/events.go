package history

import (
	"encoding/json"
	"time"
)

// Event types recorded in the session event stream.
const (
	EventUserMessage      = "user.message"
	EventTurnStart        = "assistant.turn_start"
	EventAssistantMessage = "assistant.message"
	EventToolComplete     = "tool.execution_complete"
	EventTurnEnd          = "assistant.turn_end"
)

// Event is one line of the append-only event stream. Fields are
// populated according to Type; unknown types are skipped by the fold.
type Event struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"ts,omitempty"`

	// user.message, assistant.message
	Content string `json:"content,omitempty"`

	// assistant.message
	Reasoning string      `json:"reasoning,omitempty"`
	Tools     []ToolEvent `json:"tools,omitempty"`
	Model     string      `json:"model,omitempty"`
	Provider  string      `json:"provider,omitempty"`

	// tool.execution_complete
	CallID string          `json:"callId,omitempty"`
	Status string          `json:"status,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// ToolEvent is one historical tool invocation recorded inside an
// assistant.message event.
type ToolEvent struct {
	CallID string          `json:"callId"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}
