// Package weathermesh provides a high-level façade that wires a model
// backend, the weather and location plugins and the tool-calling loop into a
// conversational weather assistant. Most applications interact with this
// package by:
//  1. Creating an Assistant via New() with a model.Model backend
//  2. Sending user input with Chat (streaming to a sink), Invoke (event
//     channels) or ChatSync (collected events)
//  3. Calling Reset to start a fresh conversation
//
// All defaults mirror a deterministic setup: seed 42, temperature 0 and a
// 16000 token budget.
package weathermesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/flow"
	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/model"
	"github.com/hupe1980/weathermesh/plugins"
	"github.com/hupe1980/weathermesh/telemetry"
	"github.com/hupe1980/weathermesh/tool"
)

// DefaultName is the assistant's display name.
const DefaultName = "WeatherAssistant"

// DefaultHomeLocation is what get_user_location reports unless configured.
const DefaultHomeLocation = "Seattle"

// DefaultInstructions is the system prompt sent with every request.
const DefaultInstructions = "You are a helpful assistant that helps the user get the weather forecast."

// Options configures the Assistant.
type Options struct {
	Name         string
	Instructions string

	// Generation holds seed, max tokens and temperature.
	Generation model.GenerationOptions
	// Stream selects the streaming backend API.
	Stream bool

	MaxIterations   int
	History         flow.HistoryMode
	MaxHistoryTurns int
	Policy          tool.Policy

	// ToolTimeout bounds each tool invocation; 0 disables.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent tool calls within one batch.
	MaxParallelTools int

	// HomeLocation is returned by get_user_location.
	HomeLocation    string
	WeatherProvider plugins.WeatherProvider
	Gazetteer       plugins.Gazetteer

	// ExtraTools are registered after the built-in plugins.
	ExtraTools []tool.Tool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Telemetry records spans and metrics; nil records nothing.
	Telemetry *telemetry.Telemetry
}

// Assistant is the high-level façade aggregating registry, plugins and loop.
type Assistant struct {
	opts     Options
	registry *tool.Registry
	loop     *flow.Loop
}

// New creates an Assistant backed by llm. Registration errors (such as a
// duplicate tool name) and invalid tool policies fail here.
func New(llm model.Model, optFns ...func(o *Options)) (*Assistant, error) {
	seed := int64(42)
	temperature := 0.0

	opts := Options{
		Name:         DefaultName,
		Instructions: DefaultInstructions,
		Generation: model.GenerationOptions{
			Seed:        &seed,
			MaxTokens:   16000,
			Temperature: &temperature,
		},
		Stream:           true,
		MaxIterations:    flow.DefaultMaxIterations,
		History:          flow.HistoryThread,
		ToolTimeout:      15 * time.Second,
		MaxParallelTools: 4,
		HomeLocation:     DefaultHomeLocation,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	gazetteer := opts.Gazetteer
	if gazetteer == nil {
		gazetteer = plugins.DefaultGazetteer()
	}

	registry := tool.NewRegistry()
	toolsets := [][]tool.Tool{
		plugins.NewWeatherPlugin(opts.WeatherProvider, gazetteer).Tools(),
		plugins.NewLocationPlugin(gazetteer, opts.HomeLocation).Tools(),
		opts.ExtraTools,
	}
	for _, ts := range toolsets {
		for _, t := range ts {
			if err := registry.Register(t); err != nil {
				return nil, fmt.Errorf("register tool: %w", err)
			}
		}
	}

	executor := flow.NewParallelFunctionExecutor(flow.FunctionExecutorConfig{
		MaxParallel: opts.MaxParallelTools,
		Timeout:     opts.ToolTimeout,
		Logger:      opts.Logger,
		Telemetry:   opts.Telemetry,
	})

	loop, err := flow.NewLoop(llm, registry, func(o *flow.LoopOptions) {
		o.AgentName = opts.Name
		o.Instructions = opts.Instructions
		o.MaxIterations = opts.MaxIterations
		o.Policy = opts.Policy
		o.Generation = opts.Generation
		o.Stream = opts.Stream
		o.History = opts.History
		o.MaxHistoryTurns = opts.MaxHistoryTurns
		o.Executor = executor
		o.Logger = opts.Logger
		o.Telemetry = opts.Telemetry
	})
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("assistant.created", "name", opts.Name, "model", llm.Info().Name, "tools", registry.Names())

	return &Assistant{opts: opts, registry: registry, loop: loop}, nil
}

// Name returns the assistant's display name.
func (a *Assistant) Name() string { return a.opts.Name }

// Tools returns the registered tool names in registration order.
func (a *Assistant) Tools() []string { return a.registry.Names() }

// Conversation exposes the underlying conversation state.
func (a *Assistant) Conversation() *core.Conversation { return a.loop.Conversation() }

// Reset discards the conversation history. It fails with
// core.ErrExchangeInProgress while a Chat is running.
func (a *Assistant) Reset() error { return a.loop.Reset() }

// Chat runs one exchange, streaming text and tool notifications to sink.
func (a *Assistant) Chat(ctx context.Context, text string, sink flow.Sink) (string, error) {
	return a.loop.RunExchange(ctx, text, sink)
}

// EventKind tags an Event.
type EventKind string

const (
	EventText       EventKind = "text"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventFinal      EventKind = "final"
)

// Event is one observable step of an exchange delivered by Invoke.
type Event struct {
	Kind   EventKind
	Text   string                 // EventText chunk or EventFinal answer
	Call   *core.FunctionCall     // EventToolCall
	Result *core.FunctionResponse // EventToolResult
}

// channelSink forwards notifications as events.
type channelSink struct {
	ctx context.Context
	ch  chan<- Event
}

func (s channelSink) emit(ev Event) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

func (s channelSink) OnText(chunk string) { s.emit(Event{Kind: EventText, Text: chunk}) }
func (s channelSink) OnToolCall(call core.FunctionCall) {
	s.emit(Event{Kind: EventToolCall, Call: &call})
}
func (s channelSink) OnToolResult(result core.FunctionResponse) {
	s.emit(Event{Kind: EventToolResult, Result: &result})
}
func (s channelSink) OnFinal(text string) { s.emit(Event{Kind: EventFinal, Text: text}) }

// Invoke starts an asynchronous exchange returning event & error channels.
// The event channel is closed when the exchange ends; a terminal error, if
// any, is delivered on the error channel first.
func (a *Assistant) Invoke(ctx context.Context, text string) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if _, err := a.loop.RunExchange(ctx, text, channelSink{ctx: ctx, ch: events}); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// ChatSync is a synchronous helper that drains Invoke and returns the final
// answer together with every event observed.
func (a *Assistant) ChatSync(ctx context.Context, text string) (string, []Event, error) {
	eventsCh, errorsCh := a.Invoke(ctx, text)

	var (
		events []Event
		answer string
	)
	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return answer, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				// Events channel closed - check for terminal error
				if err := <-errorsCh; err != nil {
					return "", events, err
				}
				return answer, events, nil
			}
			if event.Kind == EventFinal {
				answer = event.Text
			}
			events = append(events, event)
		}
	}
}
