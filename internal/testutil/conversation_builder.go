package testutil

import "github.com/hupe1980/weathermesh/core"

// ConversationBuilder assembles a conversation turn by turn.
type ConversationBuilder struct {
	turns []core.Turn
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewUserTurn(text))
	return b
}

// Assistant appends an assistant turn (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewAssistantTurn(text))
	return b
}

// ToolRound appends a tool_call turn followed by its tool_result turn (chainable).
func (b *ConversationBuilder) ToolRound(id, name, args string, result any) *ConversationBuilder {
	b.turns = append(b.turns,
		core.NewToolCallTurn(core.FunctionCall{ID: id, Name: name, Arguments: args}),
		core.NewToolResultTurn(core.FunctionResponse{ID: id, Name: name, Response: result}),
	)
	return b
}

// Turns returns the accumulated turns.
func (b *ConversationBuilder) Turns() []core.Turn {
	out := make([]core.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Build returns a conversation holding the accumulated turns.
func (b *ConversationBuilder) Build() *core.Conversation {
	c := core.NewConversation()
	for _, t := range b.turns {
		c.Append(t)
	}
	return c
}
