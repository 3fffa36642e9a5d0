package flow

import "github.com/hupe1980/weathermesh/core"

// Sink receives the observable side effects of an exchange: streamed text
// chunks in order, tool call and tool result notifications, and exactly one
// final answer when the exchange succeeds.
type Sink interface {
	OnText(chunk string)
	OnToolCall(call core.FunctionCall)
	OnToolResult(result core.FunctionResponse)
	OnFinal(text string)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Text       func(chunk string)
	ToolCall   func(call core.FunctionCall)
	ToolResult func(result core.FunctionResponse)
	Final      func(text string)
}

func (s SinkFuncs) OnText(chunk string) {
	if s.Text != nil {
		s.Text(chunk)
	}
}

func (s SinkFuncs) OnToolCall(call core.FunctionCall) {
	if s.ToolCall != nil {
		s.ToolCall(call)
	}
}

func (s SinkFuncs) OnToolResult(result core.FunctionResponse) {
	if s.ToolResult != nil {
		s.ToolResult(result)
	}
}

func (s SinkFuncs) OnFinal(text string) {
	if s.Final != nil {
		s.Final(text)
	}
}

// NopSink discards every notification.
var NopSink Sink = SinkFuncs{}
