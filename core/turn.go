package core

import (
	"time"

	"github.com/google/uuid"
)

// Role tags the kind of a Turn.
type Role string

const (
	// RoleUser marks text typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks the final text answer of the model.
	RoleAssistant Role = "assistant"
	// RoleToolCall marks a model request to invoke a tool.
	RoleToolCall Role = "tool_call"
	// RoleToolResult marks the outcome of a tool invocation.
	RoleToolResult Role = "tool_result"
)

// Turn is one immutable unit of conversation history. The Part variant is
// determined by Role:
//
//	RoleUser, RoleAssistant -> TextPart
//	RoleToolCall            -> FunctionCallPart
//	RoleToolResult          -> FunctionResponsePart
//
// Use the New*Turn constructors; they keep Role and Part consistent.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Part      Part      `json:"part"`
	Timestamp time.Time `json:"timestamp"`
}

func newTurn(role Role, part Part) Turn {
	return Turn{
		ID:        NewID(),
		Role:      role,
		Part:      part,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserTurn creates a user-authored text turn.
func NewUserTurn(text string) Turn { return newTurn(RoleUser, TextPart{Text: text}) }

// NewAssistantTurn creates the assistant's final text turn.
func NewAssistantTurn(text string) Turn { return newTurn(RoleAssistant, TextPart{Text: text}) }

// NewToolCallTurn records a tool invocation request.
func NewToolCallTurn(call FunctionCall) Turn {
	return newTurn(RoleToolCall, FunctionCallPart{FunctionCall: call})
}

// NewToolResultTurn records the resolution of a tool invocation request.
func NewToolResultTurn(resp FunctionResponse) Turn {
	return newTurn(RoleToolResult, FunctionResponsePart{FunctionResponse: resp})
}

// NewID generates a new unique identifier for turns and synthesized call IDs.
func NewID() string { return uuid.NewString() }

// Text returns the text of a user or assistant turn, or "" for tool turns.
func (t Turn) Text() string {
	if tp, ok := t.Part.(TextPart); ok {
		return tp.Text
	}
	return ""
}

// CallID returns the correlation id of tool_call / tool_result turns.
func (t Turn) CallID() string {
	switch p := t.Part.(type) {
	case FunctionCallPart:
		return p.FunctionCall.ID
	case FunctionResponsePart:
		return p.FunctionResponse.ID
	default:
		return ""
	}
}

// FunctionCall returns the request carried by a tool_call turn.
func (t Turn) FunctionCall() (FunctionCall, bool) {
	p, ok := t.Part.(FunctionCallPart)
	return p.FunctionCall, ok
}

// FunctionResponse returns the result carried by a tool_result turn.
func (t Turn) FunctionResponse() (FunctionResponse, bool) {
	p, ok := t.Part.(FunctionResponsePart)
	return p.FunctionResponse, ok
}
