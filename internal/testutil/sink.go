package testutil

import (
	"strings"
	"sync"

	"github.com/hupe1980/weathermesh/core"
)

// RecordingSink captures every notification of an exchange.
// It satisfies flow.Sink.
type RecordingSink struct {
	mu      sync.Mutex
	Chunks  []string
	Calls   []core.FunctionCall
	Results []core.FunctionResponse
	Finals  []string
}

// OnText records a streamed chunk.
func (s *RecordingSink) OnText(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Chunks = append(s.Chunks, chunk)
}

// OnToolCall records a tool call notification.
func (s *RecordingSink) OnToolCall(call core.FunctionCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
}

// OnToolResult records a tool result notification.
func (s *RecordingSink) OnToolResult(result core.FunctionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, result)
}

// OnFinal records the final answer.
func (s *RecordingSink) OnFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finals = append(s.Finals, text)
}

// Streamed returns all chunks joined.
func (s *RecordingSink) Streamed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.Chunks, "")
}
