// Package acp implements the JSON-RPC client side of the agent
// connection protocol spoken over a newline-delimited socket.
package acp

import "encoding/json"

// ProtocolVersion is the protocol revision sent during initialize.
const ProtocolVersion = 1

// Method names used on the wire.
const (
	MethodInitialize        = "initialize"
	MethodSessionNew        = "session/new"
	MethodSessionLoad       = "session/load"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionCancel     = "session/cancel"
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
)

// message is the single JSON-RPC 2.0 wire shape. A request has id and
// method, a response has id and result or error, a notification has
// method and no id.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is a JSON-RPC error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JSON-RPC error codes sent in responses to the agent.
const (
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// InboundRequest is an agent-initiated request awaiting a response from
// the bridge, such as a permission prompt.
type InboundRequest struct {
	ID     int64
	Method string
	Params json.RawMessage
}

// Notification is an agent-initiated message that expects no response.
type Notification struct {
	Method string
	Params json.RawMessage
}

// InitializeParams is sent once after connecting.
type InitializeParams struct {
	ProtocolVersion int                `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"clientCapabilities"`
}

// ClientInfo identifies the bridge to the agent.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities advertises what the bridge can handle.
type ClientCapabilities struct {
	FS FSCapabilities `json:"fs"`
}

// FSCapabilities covers agent-requested file operations, none of which
// the bridge services.
type FSCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// InitializeResult is the agent's handshake response.
type InitializeResult struct {
	ProtocolVersion int               `json:"protocolVersion"`
	AgentInfo       *AgentInfo        `json:"agentInfo,omitempty"`
	Capabilities    AgentCapabilities `json:"agentCapabilities"`
}

// AgentInfo identifies the agent implementation.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AgentCapabilities advertises optional agent features.
type AgentCapabilities struct {
	LoadSession bool `json:"loadSession"`
}

// NewSessionParams requests a fresh agent-side session.
type NewSessionParams struct {
	Cwd        string   `json:"cwd"`
	MCPServers []string `json:"mcpServers"`
}

// NewSessionResult carries the agent-assigned session id.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
}

// LoadSessionParams asks the agent to resume a known session.
type LoadSessionParams struct {
	SessionID  string   `json:"sessionId"`
	Cwd        string   `json:"cwd"`
	MCPServers []string `json:"mcpServers"`
}

// PromptParams carries one user turn.
type PromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// ContentBlock is one element of a prompt or streamed chunk.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// PromptResult arrives when the turn finishes.
type PromptResult struct {
	StopReason string `json:"stopReason"`
}

// CancelParams identifies the session whose turn should stop.
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// SessionNotification is the params shape of session/update.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// Update discriminator values.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateUserMessageChunk  = "user_message_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
	UpdateCurrentModeUpdate = "current_mode_update"
)

// SessionUpdate is the discriminated payload of a session/update
// notification. Fields are populated according to SessionUpdate ("type"
// on the wire is sessionUpdate).
type SessionUpdate struct {
	SessionUpdate string `json:"sessionUpdate"`

	// agent_message_chunk, agent_thought_chunk, user_message_chunk
	Content *ContentBlock `json:"content,omitempty"`

	// tool_call, tool_call_update
	ToolCallID string          `json:"toolCallId,omitempty"`
	Title      string          `json:"title,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Status     string          `json:"status,omitempty"`
	RawInput   json.RawMessage `json:"rawInput,omitempty"`
	RawOutput  json.RawMessage `json:"rawOutput,omitempty"`

	// plan
	Entries []PlanEntry `json:"entries,omitempty"`
}

// PlanEntry is one step of an agent-announced plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// RequestPermissionParams is the inbound params of
// session/request_permission.
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  PermissionToolCall `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// PermissionToolCall links a permission prompt to a tool invocation.
type PermissionToolCall struct {
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title,omitempty"`
}

// PermissionOption is one selectable answer.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
}

// RequestPermissionResult is the response the bridge sends back.
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// PermissionOutcome carries the user's decision.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// SelectedOutcome builds the approval outcome for an option id.
func SelectedOutcome(optionID string) RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{
		Outcome:  "selected",
		OptionID: optionID,
	}}
}

// CancelledOutcome builds the rejection outcome.
func CancelledOutcome() RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{
		Outcome: "cancelled",
	}}
}
