package flow

import (
	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/model"
	"github.com/hupe1980/weathermesh/tool"
)

// Exchange is the per-iteration view handed to request processors.
type Exchange struct {
	ID        string
	Iteration int
	Turns     []core.Turn    // conversation snapshot
	Tools     *tool.Registry // allowed subset for this exchange
	Logger    logging.Logger
}

// RequestProcessor fills in part of a model request before it is sent.
// Processors run in registration order.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ex *Exchange, req *model.Request) error
}

// InstructionsProcessor sets the system prompt.
type InstructionsProcessor struct {
	instructions string
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(instructions string) *InstructionsProcessor {
	return &InstructionsProcessor{instructions: instructions}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds system instructions to the chat request.
func (p *InstructionsProcessor) ProcessRequest(ex *Exchange, req *model.Request) error {
	req.Instructions = p.instructions
	if ex.Iteration == 1 {
		ex.Logger.Debug("flow.instructions.resolved", "length", len(p.instructions))
	}
	return nil
}

// HistoryProcessor copies the conversation snapshot into the request. With
// maxTurns > 0 only the most recent turns are sent; the window always starts
// at a user turn so tool calls are never separated from their results.
type HistoryProcessor struct {
	maxTurns int
}

// NewHistoryProcessor creates a history processor. maxTurns <= 0 sends the full history.
func NewHistoryProcessor(maxTurns int) *HistoryProcessor {
	return &HistoryProcessor{maxTurns: maxTurns}
}

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest sets req.Turns.
func (p *HistoryProcessor) ProcessRequest(ex *Exchange, req *model.Request) error {
	req.Turns = windowTurns(ex.Turns, p.maxTurns)
	if len(req.Turns) < len(ex.Turns) {
		ex.Logger.Debug("flow.history.windowed", "total", len(ex.Turns), "sent", len(req.Turns))
	}
	return nil
}

func windowTurns(turns []core.Turn, maxTurns int) []core.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	start := len(turns) - maxTurns
	for start < len(turns) && turns[start].Role != core.RoleUser {
		start++
	}
	if start == len(turns) {
		// No user turn inside the window; fall back to the latest one.
		for start = len(turns) - 1; start > 0 && turns[start].Role != core.RoleUser; start-- {
		}
	}
	return turns[start:]
}

// ToolsProcessor advertises the allowed tool subset.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools from the exchange's allowed registry.
func (p *ToolsProcessor) ProcessRequest(ex *Exchange, req *model.Request) error {
	if ex.Tools == nil || ex.Tools.Len() == 0 {
		return nil
	}
	req.Tools = ex.Tools.Declarations()
	return nil
}

// GenerationProcessor applies sampling options and the streaming flag.
type GenerationProcessor struct {
	opts   model.GenerationOptions
	stream bool
}

// NewGenerationProcessor creates a new generation processor.
func NewGenerationProcessor(opts model.GenerationOptions, stream bool) *GenerationProcessor {
	return &GenerationProcessor{opts: opts, stream: stream}
}

// Name returns the processor's identifier.
func (p *GenerationProcessor) Name() string { return "generation" }

// ProcessRequest sets req.Options and req.Stream.
func (p *GenerationProcessor) ProcessRequest(_ *Exchange, req *model.Request) error {
	req.Options = p.opts
	req.Stream = p.stream
	return nil
}
