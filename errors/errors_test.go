package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeErrorFormatting(t *testing.T) {
	err := New(ErrCodeSessionNotFound, "session 'abc' not found")
	assert.Equal(t, "SESSION_NOT_FOUND: session 'abc' not found", err.Error())

	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(cause, ErrCodeConnectionFailed, "agent unreachable at 127.0.0.1:4096")
	assert.Contains(t, wrapped.Error(), "CONNECTION_FAILED")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestIsAndGetCode(t *testing.T) {
	err := SessionNotFound("ses_123")
	assert.True(t, Is(err, ErrCodeSessionNotFound))
	assert.False(t, Is(err, ErrCodeMessageNotFound))
	assert.Equal(t, ErrCodeSessionNotFound, GetCode(err))

	// Codes survive one level of stdlib wrapping
	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, Is(wrapped, ErrCodeSessionNotFound))
	assert.Equal(t, ErrCodeSessionNotFound, GetCode(wrapped))

	assert.False(t, Is(nil, ErrCodeSessionNotFound))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := AgentCallFailed("session/prompt", -32603, "model overloaded")
	require.NotNil(t, err.Details)
	assert.Equal(t, "session/prompt", err.Details["method"])
	assert.Equal(t, -32603, err.Details["rpcCode"])
}

func TestAgentTimeout(t *testing.T) {
	err := AgentTimeout("127.0.0.1:4096", 30)
	assert.Equal(t, ErrCodeAgentTimeout, err.Code)
	assert.Contains(t, err.Message, "30 attempts")
	assert.Equal(t, 30, err.Details["attempts"])
}
