package errors

import (
	"fmt"
	"os/exec"
)

// ConnectionFailed creates an agent-unreachable error
func ConnectionFailed(addr string, err error) *BridgeError {
	return Wrap(err, ErrCodeConnectionFailed, fmt.Sprintf("agent unreachable at %s", addr)).
		WithDetail("address", addr)
}

// ConnectionLost creates an error for a socket that closed mid-session
func ConnectionLost(err error) *BridgeError {
	return Wrap(err, ErrCodeConnectionLost, "agent connection closed")
}

// AgentCallFailed creates an error for a request the agent answered with an error result
func AgentCallFailed(method string, code int, message string) *BridgeError {
	return New(ErrCodeAgentCallFailed, fmt.Sprintf("%s failed: %s", method, message)).
		WithDetail("method", method).
		WithDetail("rpcCode", code)
}

// AgentSpawn creates an agent process start failure error
func AgentSpawn(command string, err error) *BridgeError {
	bridgeErr := Wrap(err, ErrCodeAgentSpawn, fmt.Sprintf("failed to start agent: %s", command)).
		WithDetail("command", command)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		bridgeErr = bridgeErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return bridgeErr
}

// AgentTimeout creates a readiness-poll timeout error
func AgentTimeout(addr string, attempts int) *BridgeError {
	return New(ErrCodeAgentTimeout,
		fmt.Sprintf("agent did not accept connections at %s after %d attempts", addr, attempts)).
		WithDetail("address", addr).
		WithDetail("attempts", attempts)
}

// SessionNotFound creates a session lookup error
func SessionNotFound(id string) *BridgeError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("sessionId", id)
}

// MessageNotFound creates a message lookup error
func MessageNotFound(id string) *BridgeError {
	return New(ErrCodeMessageNotFound, fmt.Sprintf("message '%s' not found", id)).
		WithDetail("messageId", id)
}

// PermissionNotFound creates a permission-request lookup error
func PermissionNotFound(id string) *BridgeError {
	return New(ErrCodePermissionNotFound, fmt.Sprintf("permission request '%s' not found", id)).
		WithDetail("permissionId", id)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *BridgeError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *BridgeError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// InvalidInput creates a bad-request error
func InvalidInput(reason string) *BridgeError {
	return New(ErrCodeInvalidInput, reason)
}
