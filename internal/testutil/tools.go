package testutil

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/weathermesh/core"
)

// StubTool is a configurable tool for executor and loop tests.
type StubTool struct {
	ToolName string
	Params   map[string]any
	Result   any
	Err      error
	Delay    time.Duration // honors ctx cancellation
	Block    bool          // ignore ctx while delaying
	PanicMsg any
	ResultFn func(args map[string]any) (any, error)

	calls atomic.Int32
}

// Name implements tool.Tool.
func (s *StubTool) Name() string { return s.ToolName }

// Description implements tool.Tool.
func (s *StubTool) Description() string { return "stub " + s.ToolName }

// Parameters implements tool.Tool.
func (s *StubTool) Parameters() map[string]any {
	if s.Params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return s.Params
}

// Call implements tool.Tool.
func (s *StubTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		if s.Block {
			time.Sleep(s.Delay)
		} else {
			select {
			case <-time.After(s.Delay):
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			}
		}
	}
	if s.PanicMsg != nil {
		panic(s.PanicMsg)
	}
	if s.ResultFn != nil {
		return s.ResultFn(args)
	}
	return s.Result, s.Err
}

// Calls returns how often Call ran.
func (s *StubTool) Calls() int { return int(s.calls.Load()) }
