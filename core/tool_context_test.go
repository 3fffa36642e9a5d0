package core

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/weathermesh/logging"
)

type recordingLogger struct {
	mu       sync.Mutex
	entries  []string
	lastArgs []any
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+":"+msg)
	l.lastArgs = args
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

var _ logging.Logger = (*recordingLogger)(nil)

func TestToolContext_Accessors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &recordingLogger{}
	tc := NewToolContext(ctx, "call_1", "get_weather", log)

	if tc.Context() != ctx {
		t.Fatalf("context not propagated")
	}
	if tc.FunctionCallID() != "call_1" || tc.ToolName() != "get_weather" {
		t.Fatalf("unexpected identity: %s/%s", tc.FunctionCallID(), tc.ToolName())
	}

	tc.LogDebug("a")
	tc.LogInfo("b")
	tc.LogWarn("c")
	tc.LogError("d")
	want := []string{"debug:a", "info:b", "warn:c", "error:d"}
	if len(log.entries) != len(want) {
		t.Fatalf("expected %v, got %v", want, log.entries)
	}
	for i := range want {
		if log.entries[i] != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], log.entries[i])
		}
	}
}

func TestToolContext_LoggerScopedToCall(t *testing.T) {
	log := &recordingLogger{}
	tc := NewToolContext(context.Background(), "call_7", "get_weather", log)

	tc.Logger().Info("plugins.weather.lookup", "location", "Paris")

	want := []any{"tool", "get_weather", "call_id", "call_7", "location", "Paris"}
	if len(log.lastArgs) != len(want) {
		t.Fatalf("expected args %v, got %v", want, log.lastArgs)
	}
	for i := range want {
		if log.lastArgs[i] != want[i] {
			t.Fatalf("arg %d: expected %v, got %v", i, want[i], log.lastArgs[i])
		}
	}
}

func TestToolContext_NilLogger(t *testing.T) {
	tc := NewToolContext(context.Background(), "c", "t", nil)
	if tc.Logger() == nil {
		t.Fatalf("expected non-nil fallback logger")
	}
	tc.LogInfo("ignored")
}

func TestToolContext_CancellationVisible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := NewToolContext(ctx, "c", "t", nil)
	cancel()

	select {
	case <-tc.Context().Done():
	default:
		t.Fatalf("tool context must observe cancellation")
	}
}
