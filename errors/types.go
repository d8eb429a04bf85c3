package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Agent transport errors
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionLost   ErrorCode = "CONNECTION_LOST"
	ErrCodeProtocolParse    ErrorCode = "PROTOCOL_PARSE"
	ErrCodeAgentCallFailed  ErrorCode = "AGENT_CALL_FAILED"

	// Process supervision errors
	ErrCodeAgentSpawn   ErrorCode = "AGENT_SPAWN"
	ErrCodeAgentTimeout ErrorCode = "AGENT_TIMEOUT"

	// Resource lookup errors
	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeMessageNotFound    ErrorCode = "MESSAGE_NOT_FOUND"
	ErrCodePermissionNotFound ErrorCode = "PERMISSION_NOT_FOUND"

	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// BridgeError represents a structured error with context
type BridgeError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *BridgeError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new BridgeError
func New(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a BridgeError
func Wrap(err error, code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific BridgeError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	bridgeErr, ok := err.(*BridgeError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return bridgeErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	bridgeErr, ok := err.(*BridgeError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return bridgeErr.Code
}
