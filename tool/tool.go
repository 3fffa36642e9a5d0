// Package tool implements the function / tool calling subsystem that lets the
// assistant invoke structured capabilities (weather lookup, location
// resolution) with schema validated arguments and consistent error handling.
package tool

import (
	"fmt"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/internal/util"
)

// Tool defines the interface for callables the model may request.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Honor toolCtx.Context() cancellation (timeouts, user interrupts)
//   - Be safe for concurrent use; a batch of calls may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is sent to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for argument validation and model function calling.
	Parameters() map[string]any

	// Call executes the tool with already validated arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodePanic       = "PANIC"
	CodeNotFound    = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Wrapped cause (sentinel or original error)
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the cause so errors.Is works against core sentinels.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Validate checks args against the tool's declared parameter schema and
// returns a *ToolError with CodeValidation wrapping core.ErrArgumentValidation.
func Validate(t Tool, args map[string]any) error {
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return &ToolError{
			Tool:    t.Name(),
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     fmt.Errorf("%w: %w", core.ErrArgumentValidation, err),
		}
	}
	return nil
}
