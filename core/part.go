package core

import (
	"encoding/json"
	"fmt"
)

// Part represents the payload of a Turn. Concrete part types implement the
// unexported isPart marker enabling a closed set that callers match with a
// type switch.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id"`                  // Correlates the request with its FunctionResponse
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument object
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall `json:"function_call"`
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call. Exactly one of
// Response or Error is meaningful.
type FunctionResponse struct {
	ID       string `json:"id"`                 // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any JSON-serializable shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// IsError reports whether the response carries a failure.
func (r FunctionResponse) IsError() bool { return r.Error != "" }

// Text renders the response as the string handed back to a model. Errors are
// wrapped in an {"error": ...} object so the model can tell them apart from
// values.
func (r FunctionResponse) Text() string {
	if r.IsError() {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(b)
	}

	if s, ok := r.Response.(string); ok {
		return s
	}

	b, err := json.Marshal(r.Response)
	if err != nil {
		return fmt.Sprintf("%v", r.Response)
	}

	return string(b)
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse `json:"function_response"`
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}
