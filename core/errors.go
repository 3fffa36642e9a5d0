package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrUnknownTool is returned when a tool name has no registration.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrInvalidToolPolicy is returned when include and exclude lists are combined.
	ErrInvalidToolPolicy = errors.New("invalid tool policy")

	// ErrMalformedToolCall indicates the model streamed an unparsable tool call.
	ErrMalformedToolCall = errors.New("malformed tool call")

	// ErrArgumentValidation indicates tool arguments did not match the declared schema.
	ErrArgumentValidation = errors.New("argument validation failed")

	// ErrToolTimeout indicates a tool invocation exceeded its deadline.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolLoopExceeded is returned when an exchange hits its iteration bound.
	ErrToolLoopExceeded = errors.New("tool loop exceeded")

	// ErrExchangeInProgress is returned when a second exchange starts on a busy conversation.
	ErrExchangeInProgress = errors.New("exchange already in progress")

	// ErrBackend wraps transport or API failures of the model backend.
	ErrBackend = errors.New("model backend error")
)

// MalformedToolCallError carries the accumulated payload that failed to parse.
type MalformedToolCallError struct {
	CallID    string
	Name      string
	Arguments string
	Err       error
}

func (e *MalformedToolCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed tool call %q (%s): %v", e.Name, e.CallID, e.Err)
	}
	return fmt.Sprintf("malformed tool call %q (%s)", e.Name, e.CallID)
}

// Unwrap returns the underlying parse error.
func (e *MalformedToolCallError) Unwrap() error { return e.Err }

// Is matches ErrMalformedToolCall.
func (e *MalformedToolCallError) Is(target error) bool { return target == ErrMalformedToolCall }

// ToolLoopExceededError reports the configured iteration bound.
type ToolLoopExceededError struct {
	MaxIterations int
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("tool loop exceeded: model still requesting tools after %d iterations", e.MaxIterations)
}

// Is matches ErrToolLoopExceeded.
func (e *ToolLoopExceededError) Is(target error) bool { return target == ErrToolLoopExceeded }
