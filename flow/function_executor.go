package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/logging"
	"github.com/hupe1980/weathermesh/telemetry"
	"github.com/hupe1980/weathermesh/tool"
)

// FunctionExecutor executes a batch of function/tool calls, possibly in
// parallel. Implementations must:
//   - Respect ctx cancellation
//   - Never panic (recover internally and report an error response)
//   - Return exactly one FunctionResponse per incoming FunctionCall, in call order
//   - Never return an error; failures become FunctionResponse.Error
type FunctionExecutor interface {
	Execute(ctx context.Context, registry *tool.Registry, fnCalls []core.FunctionCall) []core.FunctionResponse
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int           // 0 or <1 => no explicit limit (len(fnCalls))
	Timeout        time.Duration // per call; 0 disables
	LogStartEvents bool          // log a start line per function
	Logger         logging.Logger
	Telemetry      *telemetry.Telemetry // nil records nothing
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Noop()
	}
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	ctx context.Context,
	registry *tool.Registry,
	fnCalls []core.FunctionCall,
) []core.FunctionResponse {
	n := len(fnCalls)
	if n == 0 {
		return nil
	}

	results := make([]core.FunctionResponse, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(ctx, registry, fnCalls[0])
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		select {
		case <-ctx.Done():
			results[i] = canceledResponse(fnCalls[i], ctx.Err())
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.executeOne(ctx, registry, fc)
		}(i, fnCalls[i])
	}

	wg.Wait()

	e.cfg.Logger.Debug(
		"flow.functions.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelFunctionExecutor) executeOne(
	ctx context.Context,
	registry *tool.Registry,
	fc core.FunctionCall,
) core.FunctionResponse {
	if err := ctx.Err(); err != nil {
		return canceledResponse(fc, err)
	}

	if e.cfg.LogStartEvents {
		e.cfg.Logger.Info("flow.function.start", "function", fc.Name, "function_call_id", fc.ID)
	}

	ctx, span := e.cfg.Telemetry.StartToolCall(ctx, fc.Name, fc.ID)

	start := time.Now()
	result, err := e.invoke(ctx, registry, fc)
	dur := time.Since(start)
	logging.LogToolCall(e.cfg.Logger, fc.Name, fc.ID, dur, err)
	e.cfg.Telemetry.EndToolCall(ctx, span, fc.Name, dur, errorCode(err), err)

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name}
	if err != nil {
		resp.Error = errorMessage(err)
		return resp
	}
	resp.Response = result
	return resp
}

// invoke resolves, validates and runs a single call under the configured timeout.
func (e *parallelFunctionExecutor) invoke(
	ctx context.Context,
	registry *tool.Registry,
	fc core.FunctionCall,
) (any, error) {
	impl, err := registry.Resolve(fc.Name)
	if err != nil {
		return nil, &tool.ToolError{Tool: fc.Name, Message: err.Error(), Code: tool.CodeUnknownTool, Err: err}
	}

	args, err := decodeArguments(fc.Arguments)
	if err != nil {
		return nil, &tool.ToolError{
			Tool:    fc.Name,
			Message: fmt.Sprintf("invalid arguments: %v", err),
			Code:    tool.CodeValidation,
			Err:     fmt.Errorf("%w: %w", core.ErrArgumentValidation, err),
		}
	}

	if err := tool.Validate(impl, args); err != nil {
		return nil, err
	}

	callCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				e.cfg.Logger.Error("flow.function.panic", "function", fc.Name, "recover", r)
				out = outcome{err: &tool.ToolError{
					Tool:    fc.Name,
					Message: fmt.Sprintf("tool panicked: %v", r),
					Code:    tool.CodePanic,
					Err:     panicError(r),
				}}
			}
			done <- out
		}()
		toolCtx := core.NewToolContext(callCtx, fc.ID, fc.Name, e.cfg.Logger)
		out.result, out.err = impl.Call(toolCtx, args)
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, e.timeoutError(fc.Name)
		}
		return out.result, out.err
	case <-callCtx.Done():
		if ctx.Err() == nil {
			return nil, e.timeoutError(fc.Name)
		}
		return nil, &tool.ToolError{Tool: fc.Name, Message: "canceled", Code: tool.CodeExecution, Err: ctx.Err()}
	}
}

func (e *parallelFunctionExecutor) timeoutError(name string) error {
	return &tool.ToolError{
		Tool:    name,
		Message: "tool timed out",
		Code:    tool.CodeTimeout,
		Details: map[string]any{"timeout_ms": e.cfg.Timeout.Milliseconds()},
		Err:     core.ErrToolTimeout,
	}
}

func decodeArguments(args string) (map[string]any, error) {
	if args == "" {
		return map[string]any{}, nil
	}
	var argMap map[string]any
	if err := json.Unmarshal([]byte(args), &argMap); err != nil {
		return nil, err
	}
	if argMap == nil {
		argMap = map[string]any{}
	}
	return argMap, nil
}

// errorMessage renders the text fed back to the model for a failed call.
func errorMessage(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}

// errorCode classifies a failed call for metrics.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) && toolErr.Code != "" {
		return toolErr.Code
	}
	return tool.CodeExecution
}

func canceledResponse(fc core.FunctionCall, err error) core.FunctionResponse {
	return core.FunctionResponse{ID: fc.ID, Name: fc.Name, Error: fmt.Sprintf("canceled: %v", err)}
}

// panicError converts a recovered panic value to an error without pulling external dependencies.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
