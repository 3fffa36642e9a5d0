package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/weathermesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// GenerationOptions carries the sampling parameters forwarded to the backend.
// Nil pointers leave the provider default in place.
type GenerationOptions struct {
	Seed        *int64   `json:"seed,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Request captures the normalized model input produced by the orchestration loop.
type Request struct {
	Instructions string            `json:"instructions"` // System prompt
	Turns        []core.Turn       `json:"turns"`        // Full conversation snapshot, oldest first
	Tools        []ToolDefinition  `json:"tools,omitempty"`
	Options      GenerationOptions `json:"options"`
	Stream       bool              `json:"stream,omitempty"`
}

// Fragment is one incremental unit of a streamed model reply.
// It is a closed set: TextDelta or ToolCallDelta.
type Fragment interface {
	isFragment()
}

// TextDelta carries a piece of user-visible answer text.
type TextDelta struct {
	Text string `json:"text"`
}

// ToolCallDelta carries part of a tool invocation. Index identifies the call
// within the reply; ID and Name are usually present only on the first delta
// for an index while Arguments arrives as successive JSON string fragments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func (TextDelta) isFragment()     {}
func (ToolCallDelta) isFragment() {}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "azure", "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the orchestration loop to drive generation.
//
// Generate streams fragments on the first channel and reports at most one
// error on the second. Both channels are closed when the reply ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Fragment, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Stream adapts the channel pair returned by Generate into a pull iterator.
type Stream struct {
	frags <-chan Fragment
	errs  <-chan error
}

// NewStream wraps a fragment and error channel pair.
func NewStream(frags <-chan Fragment, errs <-chan error) *Stream {
	return &Stream{frags: frags, errs: errs}
}

// Generate is a convenience that calls m.Generate and wraps the result.
func Generate(ctx context.Context, m Model, req Request) *Stream {
	return NewStream(m.Generate(ctx, req))
}

// Next blocks until the next fragment is available. It returns ok=false once
// the stream is exhausted. A backend error or context cancellation ends the
// stream with a non-nil error.
func (s *Stream) Next(ctx context.Context) (Fragment, bool, error) {
	for {
		if s.frags == nil && s.errs == nil {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			if err != nil {
				s.frags, s.errs = nil, nil
				return nil, false, err
			}
		case f, ok := <-s.frags:
			if !ok {
				s.frags = nil
				continue
			}
			return f, true, nil
		}
	}
}

type mockStep struct {
	frags []Fragment
	err   error
}

// MockModel is a scripted in-memory Model useful for tests & examples.
// Each Generate call consumes the next script in order. When the scripts run
// out it echoes the most recent user turn.
type MockModel struct {
	info Info

	mu       sync.Mutex
	steps    []mockStep
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// Script queues a reply made of the given fragments.
func (m *MockModel) Script(frags ...Fragment) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{frags: frags})
	return m
}

// ScriptError queues a reply that emits frags and then fails with err.
func (m *MockModel) ScriptError(err error, frags ...Fragment) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{frags: frags, err: err})
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model by replaying the next scripted reply.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step mockStep
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	} else {
		step = mockStep{frags: []Fragment{TextDelta{Text: fmt.Sprintf("Mock response to: %s", lastUserText(req.Turns))}}}
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		for _, f := range step.frags {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- f:
			}
		}
		if step.err != nil {
			errCh <- step.err
		}
	}()

	return out, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

func lastUserText(turns []core.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == core.RoleUser {
			return turns[i].Text()
		}
	}
	return ""
}
