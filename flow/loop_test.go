package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/internal/testutil"
	"github.com/hupe1980/weathermesh/model"
	"github.com/hupe1980/weathermesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parisWeather() *testutil.StubTool {
	return &testutil.StubTool{
		ToolName: "get_weather",
		Params:   locationParams,
		Result:   map[string]any{"tempC": 18, "condition": "cloudy"},
	}
}

func newTestLoop(t *testing.T, m model.Model, reg *tool.Registry, optFns ...func(o *LoopOptions)) *Loop {
	t.Helper()
	l, err := NewLoop(m, reg, optFns...)
	require.NoError(t, err)
	return l
}

func TestLoop_ScenarioA(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().ToolCall(0, "call_1", "get_weather", `{"location":`, `"Paris"}`).Build()...).
		Script(testutil.NewScript().Text("It's 18°C ", "and cloudy in Paris.").Build()...)
	reg := newExecRegistry(t, parisWeather())
	l := newTestLoop(t, m, reg, func(o *LoopOptions) { o.Instructions = "be helpful" })

	sink := &testutil.RecordingSink{}
	answer, err := l.RunExchange(context.Background(), "What's the weather in Paris?", sink)
	require.NoError(t, err)
	assert.Equal(t, "It's 18°C and cloudy in Paris.", answer)

	turns := l.Conversation().Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, core.RoleToolCall, turns[1].Role)
	assert.Equal(t, core.RoleToolResult, turns[2].Role)
	assert.Equal(t, core.RoleAssistant, turns[3].Role)
	assert.Equal(t, "call_1", turns[1].CallID())
	assert.Equal(t, turns[1].CallID(), turns[2].CallID())

	fc, _ := turns[1].FunctionCall()
	assert.Equal(t, `{"location":"Paris"}`, fc.Arguments)
	fr, _ := turns[2].FunctionResponse()
	assert.JSONEq(t, `{"condition":"cloudy","tempC":18}`, fr.Text())

	assert.Equal(t, []string{"It's 18°C ", "and cloudy in Paris."}, sink.Chunks)
	assert.Equal(t, []string{answer}, sink.Finals)
	require.Len(t, sink.Calls, 1)
	require.Len(t, sink.Results, 1)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "be helpful", reqs[0].Instructions)
	assert.True(t, reqs[0].Stream)
	require.Len(t, reqs[0].Tools, 1)
	assert.Len(t, reqs[0].Turns, 1)
	assert.Len(t, reqs[1].Turns, 3)
}

func TestLoop_ScenarioC_ToolTimeout(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().ToolCall(0, "call_1", "get_weather", `{"location":"Paris"}`).Build()...).
		Script(testutil.NewScript().Text("Sorry, the weather service is not responding right now.").Build()...)
	slow := &testutil.StubTool{ToolName: "get_weather", Params: locationParams, Delay: time.Second}
	reg := newExecRegistry(t, slow)

	l := newTestLoop(t, m, reg, func(o *LoopOptions) {
		o.Executor = NewParallelFunctionExecutor(FunctionExecutorConfig{Timeout: 20 * time.Millisecond})
	})

	answer, err := l.RunExchange(context.Background(), "What's the weather in Paris?", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "Sorry")

	turns := l.Conversation().Snapshot()
	require.Len(t, turns, 4)
	fr, ok := turns[2].FunctionResponse()
	require.True(t, ok)
	assert.NotEmpty(t, fr.Error)

	// the model saw the error result
	last := m.Requests()[1].Turns
	seen, _ := last[len(last)-1].FunctionResponse()
	assert.Equal(t, "tool timed out", seen.Error)
}

func TestLoop_MaxIterationsBoundary(t *testing.T) {
	const maxIter = 3
	m := model.NewMockModel("mock", "mock")
	for i := 0; i < maxIter+2; i++ {
		m.Script(testutil.NewScript().ToolCall(0, "", "get_weather", `{"location":"Paris"}`).Build()...)
	}
	reg := newExecRegistry(t, parisWeather())
	l := newTestLoop(t, m, reg, func(o *LoopOptions) { o.MaxIterations = maxIter })

	_, err := l.RunExchange(context.Background(), "loop forever", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolLoopExceeded)

	var loopErr *core.ToolLoopExceededError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, maxIter, loopErr.MaxIterations)
	assert.Equal(t, maxIter, m.Calls())

	// session continues with the next exchange
	m2 := l.Conversation().Len()
	assert.Equal(t, 1+2*maxIter, m2)
}

func TestLoop_FinalAnswerOnLastAllowedIteration(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().ToolCall(0, "c1", "get_weather", `{"location":"Paris"}`).Build()...).
		Script(testutil.NewScript().Text("done").Build()...)
	reg := newExecRegistry(t, parisWeather())
	l := newTestLoop(t, m, reg, func(o *LoopOptions) { o.MaxIterations = 2 })

	answer, err := l.RunExchange(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
}

func TestLoop_MalformedToolCall(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().Text("checking").ToolCall(0, "c1", "get_weather", `{"location":`).Build()...)
	reg := newExecRegistry(t, parisWeather())
	l := newTestLoop(t, m, reg)

	sink := &testutil.RecordingSink{}
	answer, err := l.RunExchange(context.Background(), "weather?", sink)
	assert.Empty(t, answer)
	assert.ErrorIs(t, err, core.ErrMalformedToolCall)
	assert.Empty(t, sink.Finals)
	assert.Equal(t, []string{"checking"}, sink.Chunks)
}

func TestLoop_BackendError(t *testing.T) {
	boom := errors.New("401 unauthorized")
	m := model.NewMockModel("mock", "mock").ScriptError(boom)
	l := newTestLoop(t, m, tool.NewRegistry())

	_, err := l.RunExchange(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, core.ErrBackend)
	assert.ErrorIs(t, err, boom)

	// the next exchange works
	m.Script(testutil.NewScript().Text("hello").Build()...)
	answer, err := l.RunExchange(context.Background(), "hi again", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)
}

// blockingModel never finishes its reply until ctx is done.
type blockingModel struct {
	started chan struct{}
}

func (b *blockingModel) Generate(ctx context.Context, _ model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		close(b.started)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return out, errCh
}

func (b *blockingModel) Info() model.Info { return model.Info{Name: "blocking", Provider: "test"} }

func TestLoop_RejectsConcurrentExchange(t *testing.T) {
	bm := &blockingModel{started: make(chan struct{})}
	l := newTestLoop(t, bm, tool.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.RunExchange(ctx, "first", nil)
		done <- err
	}()

	<-bm.started
	_, err := l.RunExchange(context.Background(), "second", nil)
	assert.ErrorIs(t, err, core.ErrExchangeInProgress)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// only the first user turn was recorded
	assert.Equal(t, 1, l.Conversation().Len())
}

func TestLoop_ResetRejectedWhileBusy(t *testing.T) {
	bm := &blockingModel{started: make(chan struct{})}
	l := newTestLoop(t, bm, tool.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.RunExchange(ctx, "first", nil)
		done <- err
	}()

	<-bm.started
	assert.ErrorIs(t, l.Reset(), core.ErrExchangeInProgress)
	assert.Equal(t, 1, l.Conversation().Len())

	cancel()
	<-done
	require.NoError(t, l.Reset())
	assert.Equal(t, 0, l.Conversation().Len())
}

func TestLoop_HistoryModes(t *testing.T) {
	script := func(m *model.MockModel) {
		m.Script(testutil.NewScript().Text("one").Build()...).
			Script(testutil.NewScript().Text("two").Build()...)
	}

	thread := model.NewMockModel("mock", "mock")
	script(thread)
	lt := newTestLoop(t, thread, nil)
	_, _ = lt.RunExchange(context.Background(), "a", nil)
	_, _ = lt.RunExchange(context.Background(), "b", nil)
	assert.Len(t, thread.Requests()[1].Turns, 3)
	assert.Equal(t, 4, lt.Conversation().Len())

	prompt := model.NewMockModel("mock", "mock")
	script(prompt)
	lp := newTestLoop(t, prompt, nil, func(o *LoopOptions) { o.History = HistoryPrompt })
	_, _ = lp.RunExchange(context.Background(), "a", nil)
	_, _ = lp.RunExchange(context.Background(), "b", nil)
	assert.Len(t, prompt.Requests()[1].Turns, 1)
	assert.Equal(t, 2, lp.Conversation().Len())
}

func TestLoop_ToolPolicy(t *testing.T) {
	reg := newExecRegistry(t,
		parisWeather(),
		&testutil.StubTool{ToolName: "resolve_location"},
		&testutil.StubTool{ToolName: "get_user_location"},
	)

	_, err := NewLoop(model.NewMockModel("m", "mock"), reg, func(o *LoopOptions) {
		o.Policy = tool.Policy{Include: []string{"a"}, Exclude: []string{"b"}}
	})
	assert.ErrorIs(t, err, core.ErrInvalidToolPolicy)

	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().Text("x").Build()...).
		Script(testutil.NewScript().ToolCall(0, "c1", "resolve_location", `{}`).Build()...).
		Script(testutil.NewScript().Text("y").Build()...)
	l := newTestLoop(t, m, reg, func(o *LoopOptions) {
		o.Policy = tool.Policy{Exclude: []string{"get_user_location"}}
	})

	_, err = l.RunExchange(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Len(t, m.Requests()[0].Tools, 2)

	// per-exchange override: resolve_location is not advertised, so calling it fails as a tool error
	_, err = l.RunExchange(context.Background(), "hi", nil, WithPolicy(tool.Policy{Include: []string{"get_weather"}}))
	require.NoError(t, err)
	reqs := m.Requests()
	require.Len(t, reqs[1].Tools, 1)
	assert.Equal(t, "get_weather", reqs[1].Tools[0].Function.Name)

	last := reqs[2].Turns
	fr, _ := last[len(last)-1].FunctionResponse()
	assert.Contains(t, fr.Error, "unknown tool")
}

func TestLoop_HistoryWindow(t *testing.T) {
	turns := testutil.NewConversationBuilder().
		User("a").Assistant("1").
		User("b").ToolRound("c1", "get_weather", `{}`, "r").Assistant("2").
		User("c").
		Turns()

	assert.Len(t, windowTurns(turns, 0), len(turns))
	w := windowTurns(turns, 4)
	require.Len(t, w, 1)
	assert.Equal(t, "c", w[0].Text())

	w = windowTurns(turns, 5)
	require.Len(t, w, 5)
	assert.Equal(t, "b", w[0].Text())
}
