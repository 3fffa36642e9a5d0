package core

import (
	"context"

	"github.com/hupe1980/weathermesh/logging"
)

// ToolContext is what a tool sees of its invocation: the deadline-bound
// context, the correlating call id and a logger already scoped with the
// tool name and call id.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	toolName       string
	logger         logging.Logger
}

// NewToolContext constructs a tool context for a single invocation. A nil
// logger discards output.
func NewToolContext(ctx context.Context, functionCallID, toolName string, logger logging.Logger) *ToolContext {
	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		toolName:       toolName,
		logger:         logging.With(logger, "tool", toolName, "call_id", functionCallID),
	}
}

// Context returns the context associated with the tool invocation. It is
// cancelled when the invocation times out or the exchange is interrupted.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Logger returns the scoped logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the id correlating this invocation with its result.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.toolName }

func (tc *ToolContext) LogDebug(msg string, args ...any) { tc.logger.Debug(msg, args...) }
func (tc *ToolContext) LogInfo(msg string, args ...any)  { tc.logger.Info(msg, args...) }
func (tc *ToolContext) LogWarn(msg string, args ...any)  { tc.logger.Warn(msg, args...) }
func (tc *ToolContext) LogError(msg string, args ...any) { tc.logger.Error(msg, args...) }
