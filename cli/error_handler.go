package cli

import (
	"fmt"
	"os"

	"github.com/grovetools/bridge/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a bridge.yml in your project or ~/.config/bridge/.\n")
		return err

	case errors.ErrCodeConnectionFailed:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Agent unreachable at %v\n", bridgeErr.Details["address"])
			fmt.Fprintf(os.Stderr, "Check that the agent is installed and its port matches bridge.yml.\n")
		}
		return err

	case errors.ErrCodeAgentSpawn:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Failed to start agent '%v'\n", bridgeErr.Details["command"])
			fmt.Fprintf(os.Stderr, "Make sure the agent binary is on your PATH.\n")
		}
		return err

	case errors.ErrCodeAgentTimeout:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Agent did not become ready at %v\n", bridgeErr.Details["address"])
			fmt.Fprintf(os.Stderr, "The agent may be slow to start or listening on another port.\n")
		}
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if bridgeErr, ok := err.(*errors.BridgeError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", bridgeErr.ToJSON())
			}
		}
		return err
	}
}
