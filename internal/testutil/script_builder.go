package testutil

import "github.com/hupe1980/weathermesh/model"

// ScriptBuilder provides a fluent helper for constructing fragment scripts
// fed to model.MockModel.
// Example:
//
//	frags := NewScript().Text("Let me ", "check").ToolCall(0, "c1", "get_weather", `{"loc`, `ation":"Paris"}`).Build()
type ScriptBuilder struct {
	frags []model.Fragment
}

// NewScript creates an empty script.
func NewScript() *ScriptBuilder { return &ScriptBuilder{} }

// Text appends one text delta per chunk (chainable).
func (b *ScriptBuilder) Text(chunks ...string) *ScriptBuilder {
	for _, c := range chunks {
		b.frags = append(b.frags, model.TextDelta{Text: c})
	}
	return b
}

// ToolCall appends the deltas of one tool call. The first delta carries id and
// name, every argument piece becomes its own delta (chainable).
func (b *ScriptBuilder) ToolCall(index int, id, name string, argPieces ...string) *ScriptBuilder {
	first := model.ToolCallDelta{Index: index, ID: id, Name: name}
	if len(argPieces) > 0 {
		first.Arguments = argPieces[0]
		argPieces = argPieces[1:]
	}
	b.frags = append(b.frags, first)
	for _, p := range argPieces {
		b.frags = append(b.frags, model.ToolCallDelta{Index: index, Arguments: p})
	}
	return b
}

// ArgDelta appends a bare argument delta for an already started call (chainable).
// Useful for interleaving fragments of several calls.
func (b *ScriptBuilder) ArgDelta(index int, piece string) *ScriptBuilder {
	b.frags = append(b.frags, model.ToolCallDelta{Index: index, Arguments: piece})
	return b
}

// Build returns the accumulated fragments.
func (b *ScriptBuilder) Build() []model.Fragment {
	out := make([]model.Fragment, len(b.frags))
	copy(out, b.frags)
	return out
}
