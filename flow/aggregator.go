package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/model"
)

// Outcome is the terminal value of one model invocation.
// It is a closed set: FinalAnswer or Continue.
type Outcome interface {
	isOutcome()
}

// FinalAnswer carries the complete assistant text of a reply without tool calls.
type FinalAnswer struct {
	Text string
}

// Continue carries the fully received tool calls of a reply, in first-seen order.
// Text streamed before the calls is kept for diagnostics only.
type Continue struct {
	Calls []core.FunctionCall
	Text  string
}

func (FinalAnswer) isOutcome() {}
func (Continue) isOutcome()    {}

// FragmentSource is the pull side of a model reply. *model.Stream implements it.
type FragmentSource interface {
	Next(ctx context.Context) (model.Fragment, bool, error)
}

// StreamAggregator assembles a fragment stream into an Outcome while
// forwarding text deltas as they arrive.
type StreamAggregator struct{}

// NewStreamAggregator creates a StreamAggregator.
func NewStreamAggregator() *StreamAggregator { return &StreamAggregator{} }

type callBuffer struct {
	id   string
	name string
	args strings.Builder
}

// Aggregate drains src. onText (may be nil) receives every non-empty text
// delta immediately. Tool call deltas are buffered per Index and their
// argument pieces concatenated in arrival order. Deltas carrying no id, name
// or arguments are ignored.
//
// When the stream ends with at least one tool call the result is Continue,
// even if text was streamed too. Each accumulated argument payload must be a
// JSON object (an empty payload counts as {}), otherwise a
// *core.MalformedToolCallError is returned. Calls without an ID receive a
// generated one.
func (a *StreamAggregator) Aggregate(
	ctx context.Context,
	src FragmentSource,
	onText func(string),
) (Outcome, error) {
	var (
		text  strings.Builder
		calls = map[int]*callBuffer{}
		order []int
	)

	for {
		frag, ok, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		switch f := frag.(type) {
		case model.TextDelta:
			if f.Text == "" {
				continue
			}
			text.WriteString(f.Text)
			if onText != nil {
				onText(f.Text)
			}
		case model.ToolCallDelta:
			if f.ID == "" && f.Name == "" && f.Arguments == "" {
				continue
			}
			buf, exists := calls[f.Index]
			if !exists {
				buf = &callBuffer{}
				calls[f.Index] = buf
				order = append(order, f.Index)
			}
			if f.ID != "" {
				buf.id = f.ID
			}
			if f.Name != "" {
				buf.name = f.Name
			}
			buf.args.WriteString(f.Arguments)
		}
	}

	if len(order) == 0 {
		return FinalAnswer{Text: text.String()}, nil
	}

	out := make([]core.FunctionCall, 0, len(order))
	for _, idx := range order {
		fc, err := finalizeCall(calls[idx])
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}

	return Continue{Calls: out, Text: text.String()}, nil
}

func finalizeCall(buf *callBuffer) (core.FunctionCall, error) {
	args := strings.TrimSpace(buf.args.String())
	if args == "" {
		args = "{}"
	}

	if buf.id == "" {
		buf.id = "call_" + core.NewID()
	}

	malformed := func(err error) error {
		return &core.MalformedToolCallError{CallID: buf.id, Name: buf.name, Arguments: args, Err: err}
	}

	if buf.name == "" {
		return core.FunctionCall{}, malformed(errors.New("missing tool name"))
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(args), &obj); err != nil {
		return core.FunctionCall{}, malformed(err)
	}
	if obj == nil {
		return core.FunctionCall{}, malformed(errors.New("arguments must be a JSON object"))
	}

	return core.FunctionCall{ID: buf.id, Name: buf.name, Arguments: args}, nil
}
