package flow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/model"
	"github.com/hupe1980/weathermesh/telemetry"
	"github.com/hupe1980/weathermesh/tool"
)

// HistoryMode selects whether the conversation survives between exchanges.
type HistoryMode string

const (
	// HistoryThread keeps every turn for the lifetime of the Loop.
	HistoryThread HistoryMode = "thread"
	// HistoryPrompt starts every exchange from an empty conversation.
	HistoryPrompt HistoryMode = "prompt"
)

// DefaultMaxIterations bounds the model calls of one exchange.
const DefaultMaxIterations = 10

// LoopOptions configure a Loop.
type LoopOptions struct {
	AgentName       string
	Instructions    string
	MaxIterations   int // <= 0 => DefaultMaxIterations
	Policy          tool.Policy
	Generation      model.GenerationOptions
	Stream          bool
	History         HistoryMode
	MaxHistoryTurns int // 0 sends the full history

	// Executor runs tool batches; defaults to a parallel executor.
	Executor FunctionExecutor

	// Processors replace the default request pipeline when non-empty.
	Processors []RequestProcessor

	Logger logging.Logger

	// Telemetry records exchange, model and tool spans; nil records nothing.
	Telemetry *telemetry.Telemetry
}

// ExchangeOptions override loop settings for a single exchange.
type ExchangeOptions struct {
	Policy *tool.Policy
}

// WithPolicy restricts the advertised tools for one exchange.
func WithPolicy(p tool.Policy) func(o *ExchangeOptions) {
	return func(o *ExchangeOptions) { o.Policy = &p }
}

// Loop drives exchanges: it sends the conversation to the model, aggregates
// the streamed reply, runs requested tools and repeats until the model
// answers in text or the iteration bound is hit.
//
// A Loop owns its Conversation. Only one exchange may run at a time; a
// concurrent RunExchange fails with core.ErrExchangeInProgress.
type Loop struct {
	llm        model.Model
	registry   *tool.Registry
	conv       *core.Conversation
	aggregator *StreamAggregator
	executor   FunctionExecutor
	processors []RequestProcessor
	opts       LoopOptions
	busy       atomic.Bool
}

// NewLoop validates the configuration and builds a Loop. An invalid default
// tool policy fails here, before any exchange starts.
func NewLoop(llm model.Model, registry *tool.Registry, optFns ...func(o *LoopOptions)) (*Loop, error) {
	if llm == nil {
		return nil, errors.New("model is required")
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}

	opts := LoopOptions{
		AgentName:     "assistant",
		MaxIterations: DefaultMaxIterations,
		Stream:        true,
		History:       HistoryThread,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}
	switch opts.History {
	case HistoryThread, HistoryPrompt:
	case "":
		opts.History = HistoryThread
	default:
		return nil, fmt.Errorf("unknown history mode %q", opts.History)
	}

	if _, err := registry.AllowedSubset(opts.Policy); err != nil {
		return nil, err
	}

	executor := opts.Executor
	if executor == nil {
		executor = NewParallelFunctionExecutor(FunctionExecutorConfig{
			Logger:    opts.Logger,
			Telemetry: opts.Telemetry,
		})
	}

	processors := opts.Processors
	if len(processors) == 0 {
		processors = []RequestProcessor{
			NewInstructionsProcessor(opts.Instructions),
			NewHistoryProcessor(opts.MaxHistoryTurns),
			NewToolsProcessor(),
			NewGenerationProcessor(opts.Generation, opts.Stream),
		}
	}

	return &Loop{
		llm:        llm,
		registry:   registry,
		conv:       core.NewConversation(),
		aggregator: NewStreamAggregator(),
		executor:   executor,
		processors: processors,
		opts:       opts,
	}, nil
}

// Conversation exposes the loop's conversation state.
func (l *Loop) Conversation() *core.Conversation { return l.conv }

// Reset clears the conversation. It fails with core.ErrExchangeInProgress
// while an exchange is running.
func (l *Loop) Reset() error {
	if !l.busy.CompareAndSwap(false, true) {
		return core.ErrExchangeInProgress
	}
	defer l.busy.Store(false)

	l.conv.Reset()
	return nil
}

// RunExchange appends userText as a user turn and iterates until a final
// answer is produced. Text chunks are forwarded to sink while streaming.
//
// Tool failures are fed back to the model and never returned. Returned
// errors are exchange-level: core.ErrToolLoopExceeded, core.ErrMalformedToolCall,
// core.ErrBackend, core.ErrExchangeInProgress or a context error. Turns
// appended before a failure stay in the conversation.
func (l *Loop) RunExchange(
	ctx context.Context,
	userText string,
	sink Sink,
	optFns ...func(o *ExchangeOptions),
) (answer string, err error) {
	if !l.busy.CompareAndSwap(false, true) {
		return "", core.ErrExchangeInProgress
	}
	defer l.busy.Store(false)

	if sink == nil {
		sink = NopSink
	}

	exOpts := ExchangeOptions{}
	for _, fn := range optFns {
		fn(&exOpts)
	}
	policy := l.opts.Policy
	if exOpts.Policy != nil {
		policy = *exOpts.Policy
	}

	allowed, err := l.registry.AllowedSubset(policy)
	if err != nil {
		return "", err
	}

	if l.opts.History == HistoryPrompt {
		l.conv.Reset()
	}

	exchangeID := core.NewID()
	logger := logging.With(l.opts.Logger, "agent", l.opts.AgentName, "exchange", exchangeID)
	logger.Info("flow.exchange.start", "tools", len(allowed.Names()), "history", l.conv.Len())

	limiter := core.NewIterationLimiter(l.opts.MaxIterations)

	ctx, span := l.opts.Telemetry.StartExchange(ctx, l.opts.AgentName, exchangeID)
	defer func() { l.opts.Telemetry.EndExchange(ctx, span, limiter.Count(), err) }()

	l.conv.Append(core.NewUserTurn(userText))

	start := time.Now()

	for {
		if err := limiter.Increment(); err != nil {
			logger.Warn("flow.exchange.loop_exceeded", "max_iterations", l.opts.MaxIterations)
			return "", err
		}

		outcome, err := l.step(ctx, &Exchange{
			ID:        exchangeID,
			Iteration: limiter.Count(),
			Turns:     l.conv.Snapshot(),
			Tools:     allowed,
			Logger:    logger,
		}, sink)
		if err != nil {
			logger.Error("flow.exchange.failed", "iteration", limiter.Count(), "error", err.Error())
			return "", err
		}

		switch o := outcome.(type) {
		case FinalAnswer:
			l.conv.Append(core.NewAssistantTurn(o.Text))
			sink.OnFinal(o.Text)
			logger.Info(
				"flow.exchange.complete",
				"iterations", limiter.Count(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return o.Text, nil
		case Continue:
			for _, fc := range o.Calls {
				l.conv.Append(core.NewToolCallTurn(fc))
				sink.OnToolCall(fc)
			}

			results := l.executor.Execute(ctx, allowed, o.Calls)
			for _, r := range results {
				l.conv.Append(core.NewToolResultTurn(r))
				sink.OnToolResult(r)
			}

			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
	}
}

// step performs one model invocation and aggregates its reply.
func (l *Loop) step(ctx context.Context, ex *Exchange, sink Sink) (Outcome, error) {
	req := model.Request{}
	for _, p := range l.processors {
		if err := p.ProcessRequest(ex, &req); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	modelName := l.llm.Info().Name
	ctx, span := l.opts.Telemetry.StartModelCall(ctx, modelName, ex.Iteration)

	start := time.Now()
	stream := model.Generate(ctx, l.llm, req)
	outcome, err := l.aggregator.Aggregate(ctx, stream, sink.OnText)
	logging.LogModelCall(ex.Logger, modelName, ex.Iteration, time.Since(start), err)
	l.opts.Telemetry.EndModelCall(ctx, span, modelName, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, core.ErrMalformedToolCall) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrBackend, err)
	}

	if c, ok := outcome.(Continue); ok && c.Text != "" {
		ex.Logger.Debug("flow.text.discarded", "length", len(c.Text), "tool_calls", len(c.Calls))
	}

	return outcome, nil
}
