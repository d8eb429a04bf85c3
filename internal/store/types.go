// Package store holds the authoritative in-memory state for all sessions.
package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the content part variants.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartTool      PartType = "tool"
)

// ToolStatus is the lifecycle state of a tool invocation part.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// Terminal reports whether the status is final.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolError
}

// statusRank orders statuses so transitions can be checked for monotonicity.
var statusRank = map[ToolStatus]int{
	ToolPending:   0,
	ToolRunning:   1,
	ToolCompleted: 2,
	ToolError:     2,
}

// CanTransition reports whether moving from s to next is a forward transition.
func (s ToolStatus) CanTransition(next ToolStatus) bool {
	return statusRank[next] >= statusRank[s] && !s.Terminal()
}

// Session is one conversation, live or reconstructed from disk.
type Session struct {
	ID        string    `json:"id"`
	Directory string    `json:"directory"`
	ProjectID string    `json:"projectId,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Messages []*Message `json:"-"`

	// ActiveMessageID is the per-session streaming cursor: the assistant
	// message currently accumulating parts. Empty between turns.
	ActiveMessageID string `json:"-"`

	// Registered is true once the agent knows this session id.
	// Sessions reconstructed from disk start unregistered.
	Registered bool `json:"-"`
}

// Message returns the session's message with the given id, or nil.
func (s *Session) Message(id string) *Message {
	for _, m := range s.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Message is one entry in a session's ordered transcript.
type Message struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Parts       []*Part    `json:"parts"`
	Model       string     `json:"model,omitempty"`
	Provider    string     `json:"provider,omitempty"`
}

// Part returns the part with the given id, or nil.
func (m *Message) Part(id string) *Part {
	for _, p := range m.Parts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ToolPart returns the tool-invocation part with the given call id, or nil.
func (m *Message) ToolPart(callID string) *Part {
	for _, p := range m.Parts {
		if p.Type == PartTool && p.CallID == callID {
			return p
		}
	}
	return nil
}

// Part is a typed fragment of a message's content. Text and reasoning parts
// grow in place as chunks arrive; tool parts mutate status and output as
// lifecycle notifications arrive. Mutation is keyed by id.
type Part struct {
	ID   string   `json:"id"`
	Type PartType `json:"type"`

	// Text carries the accumulated content of text and reasoning parts.
	Text string `json:"text,omitempty"`

	// Tool invocation fields.
	CallID     string          `json:"callId,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Status     ToolStatus      `json:"status,omitempty"`
	Input      *ToolInput      `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	EndedAt    *time.Time      `json:"endedAt,omitempty"`
	DurationMS int64           `json:"durationMs,omitempty"`
}

// ToolKind discriminates the known tool input payloads.
type ToolKind string

const (
	ToolKindCommand  ToolKind = "command"
	ToolKindFileRead ToolKind = "file_read"
	ToolKindFileEdit ToolKind = "file_edit"
	ToolKindOpaque   ToolKind = "opaque"
)

// ToolInput is a tagged union over the known tool input shapes, with an
// opaque fallback so unrecognized tools keep their payload byte-for-byte.
type ToolInput struct {
	Kind     ToolKind        `json:"kind"`
	Command  *CommandInput   `json:"command,omitempty"`
	FileRead *FileReadInput  `json:"fileRead,omitempty"`
	FileEdit *FileEditInput  `json:"fileEdit,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// CommandInput is the payload of shell-style tools.
type CommandInput struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

// FileReadInput is the payload of file-reading tools.
type FileReadInput struct {
	Path string `json:"path"`
}

// FileEditInput is the payload of file-writing tools.
type FileEditInput struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// DecodeToolInput maps a tool's raw input into the tagged union. Unknown
// tools and undecodable payloads fall back to the opaque variant.
func DecodeToolInput(tool string, raw json.RawMessage) *ToolInput {
	if len(raw) == 0 {
		return nil
	}
	name := strings.ToLower(tool)
	switch {
	case strings.Contains(name, "bash"), strings.Contains(name, "shell"),
		strings.Contains(name, "execute"), strings.Contains(name, "command"):
		var cmd CommandInput
		if err := json.Unmarshal(raw, &cmd); err == nil && cmd.Command != "" {
			return &ToolInput{Kind: ToolKindCommand, Command: &cmd}
		}
	case strings.Contains(name, "read"):
		var fr FileReadInput
		if err := json.Unmarshal(raw, &fr); err == nil && fr.Path != "" {
			return &ToolInput{Kind: ToolKindFileRead, FileRead: &fr}
		}
	case strings.Contains(name, "edit"), strings.Contains(name, "write"),
		strings.Contains(name, "patch"):
		var fe FileEditInput
		if err := json.Unmarshal(raw, &fe); err == nil && fe.Path != "" {
			return &ToolInput{Kind: ToolKindFileEdit, FileEdit: &fe}
		}
	}
	return &ToolInput{Kind: ToolKindOpaque, Raw: raw}
}

// PermissionRequest is a pending interactive approval from the agent.
type PermissionRequest struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	OptionIDs []string  `json:"optionIds"`
	AlwaysIDs []string  `json:"alwaysIds,omitempty"`
	CallID    string    `json:"callId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// RequestID is the agent-side JSON-RPC id the eventual reply must
	// target. Kept out of API responses.
	RequestID int64 `json:"-"`
}

// Clone returns a deep copy of the session safe to hand to readers while
// the translator keeps mutating the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]*Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.CompletedAt != nil {
		completed := *m.CompletedAt
		out.CompletedAt = &completed
	}
	out.Parts = make([]*Part, len(m.Parts))
	for i, p := range m.Parts {
		out.Parts[i] = p.Clone()
	}
	return &out
}

// Clone returns a deep copy of the part.
func (p *Part) Clone() *Part {
	if p == nil {
		return nil
	}
	out := *p
	if p.StartedAt != nil {
		started := *p.StartedAt
		out.StartedAt = &started
	}
	if p.EndedAt != nil {
		ended := *p.EndedAt
		out.EndedAt = &ended
	}
	if p.Input != nil {
		input := *p.Input
		out.Input = &input
	}
	if p.Output != nil {
		out.Output = append(json.RawMessage(nil), p.Output...)
	}
	return &out
}
