package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weathermesh"
	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/flow"
	"github.com/hupe1980/weathermesh/internal/testutil"
	"github.com/hupe1980/weathermesh/model"
)

type fakeAssistant struct {
	mu     sync.Mutex
	inputs []string
	fn     func(ctx context.Context, text string, sink flow.Sink) (string, error)
}

func (f *fakeAssistant) Chat(ctx context.Context, text string, sink flow.Sink) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, text, sink)
	}
	sink.OnText("echo: " + text)
	sink.OnFinal("echo: " + text)
	return "echo: " + text, nil
}

func (f *fakeAssistant) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

func run(t *testing.T, a Assistant, input string, optFns ...func(o *Options)) string {
	t.Helper()
	var out bytes.Buffer
	fns := append([]func(o *Options){func(o *Options) {
		o.In = strings.NewReader(input)
		o.Out = &out
		o.NoColor = true
	}}, optFns...)
	require.NoError(t, New(a, fns...).Run(context.Background()))
	return out.String()
}

func TestRun_ExitWithoutExchange(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	a, err := weathermesh.New(m)
	require.NoError(t, err)

	out := run(t, a, "exit\nWhat's the weather?\n")

	assert.Equal(t, 0, m.Calls())
	assert.Contains(t, out, "Welcome to your weather assistant.")
	assert.Contains(t, out, "Exiting chat...")
	assert.NotContains(t, out, "Assistant:> ")
}

func TestRun_ExitIsCaseSensitive(t *testing.T) {
	f := &fakeAssistant{}
	run(t, f, "Exit\n exit\nexit\n")
	assert.Equal(t, []string{"Exit", " exit"}, f.Inputs())
}

func TestRun_EOFEndsSession(t *testing.T) {
	f := &fakeAssistant{}
	out := run(t, f, "hello")

	assert.Equal(t, []string{"hello"}, f.Inputs())
	assert.Contains(t, out, "Assistant:> # WeatherAssistant: echo: hello\n")
	assert.True(t, strings.HasSuffix(out, "\n\nExiting chat...\n"))
}

func TestRun_SkipsEmptyLines(t *testing.T) {
	f := &fakeAssistant{}
	run(t, f, "\n\r\nhi\n")
	assert.Equal(t, []string{"hi"}, f.Inputs())
}

func TestRun_StreamsWeatherAnswer(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		Script(testutil.NewScript().ToolCall(0, "call_1", "get_weather", `{"location":`, `"Paris"}`).Build()...).
		Script(testutil.NewScript().Text("It's 18°C ", "and cloudy.").Build()...)
	a, err := weathermesh.New(m)
	require.NoError(t, err)

	out := run(t, a, "What's the weather in Paris?\nexit\n", func(o *Options) { o.Verbose = true })

	assert.Equal(t, 2, m.Calls())
	assert.Contains(t, out, `Function Call:> get_weather with arguments: {"location":"Paris"}`)
	assert.Contains(t, out, "Function Result:> ")
	assert.Contains(t, out, "for function: get_weather")
	assert.Contains(t, out, "# WeatherAssistant: It's 18°C and cloudy.\n")
}

func TestRun_QuietHidesToolCalls(t *testing.T) {
	f := &fakeAssistant{fn: func(_ context.Context, _ string, sink flow.Sink) (string, error) {
		sink.OnToolCall(core.FunctionCall{ID: "c1", Name: "get_weather", Arguments: "{}"})
		sink.OnToolResult(core.FunctionResponse{ID: "c1", Name: "get_weather", Response: "ok"})
		sink.OnText("done")
		sink.OnFinal("done")
		return "done", nil
	}}

	out := run(t, f, "hi\n")
	assert.NotContains(t, out, "Function Call:>")
	assert.Contains(t, out, "done")
}

func TestRun_FinalWithoutStreamedText(t *testing.T) {
	f := &fakeAssistant{fn: func(_ context.Context, _ string, sink flow.Sink) (string, error) {
		sink.OnFinal("whole answer")
		return "whole answer", nil
	}}

	out := run(t, f, "hi\n", func(o *Options) { o.Name = "Bot" })
	assert.Contains(t, out, "# Bot: whole answer\n")
}

func TestRun_ErrorKeepsSessionAlive(t *testing.T) {
	calls := 0
	f := &fakeAssistant{fn: func(_ context.Context, text string, sink flow.Sink) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("backend unavailable")
		}
		sink.OnText("ok")
		sink.OnFinal("ok")
		return "ok", nil
	}}

	out := run(t, f, "first\nsecond\n")
	assert.Equal(t, []string{"first", "second"}, f.Inputs())
	assert.Contains(t, out, "Error: backend unavailable")
	assert.Contains(t, out, "# WeatherAssistant: ok")
}

func TestRun_CancelWhileWaitingForInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&fakeAssistant{}, func(o *Options) {
			o.In = pr
			o.Out = &out
			o.NoColor = true
		}).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shell did not stop after cancellation")
	}
	assert.Contains(t, out.String(), "Exiting chat...")
}

func TestRun_CancelDuringExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeAssistant{fn: func(ctx context.Context, _ string, _ flow.Sink) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}}

	var out bytes.Buffer
	err := New(f, func(o *Options) {
		o.In = strings.NewReader("hi\nnext\n")
		o.Out = &out
		o.NoColor = true
	}).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, f.Inputs())
	assert.NotContains(t, out.String(), "Error:")
	assert.Contains(t, out.String(), "Exiting chat...")
}
