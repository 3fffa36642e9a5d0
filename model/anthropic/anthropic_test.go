package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	turns := []core.Turn{
		core.NewUserTurn("weather in Paris and Rome?"),
		core.NewToolCallTurn(core.FunctionCall{ID: "t1", Name: "get_weather", Arguments: `{"location":"Paris"}`}),
		core.NewToolCallTurn(core.FunctionCall{ID: "t2", Name: "get_weather", Arguments: `{"location":"Rome"}`}),
		core.NewToolResultTurn(core.FunctionResponse{ID: "t1", Name: "get_weather", Response: "18C"}),
		core.NewToolResultTurn(core.FunctionResponse{ID: "t2", Name: "get_weather", Error: "tool timed out"}),
		core.NewAssistantTurn("Paris is 18C."),
	}

	msgs := buildMessages(turns)
	require.Len(t, msgs, 4)

	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	require.NotNil(t, msgs[1].Content[0].OfToolUse)
	assert.Equal(t, "t1", msgs[1].Content[0].OfToolUse.ID)
	assert.Equal(t, "get_weather", msgs[1].Content[1].OfToolUse.Name)

	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "t1", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "t2", msgs[2].Content[1].OfToolResult.ToolUseID)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[3].Role)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "get_weather",
			Description: "Current weather",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]any{"location": map[string]any{"type": "string"}},
				"required":   []interface{}{"location"},
			},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "get_weather", tools[0].OfTool.Name)
	assert.Equal(t, "Current weather", tools[0].OfTool.Description.Value)
	assert.Equal(t, []string{"location"}, tools[0].OfTool.InputSchema.Required)
}

func TestBuildParams(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	temp := 0.5
	params := m.buildParams(model.Request{
		Instructions: "be helpful",
		Turns:        []core.Turn{core.NewUserTurn("hi")},
		Options:      model.GenerationOptions{MaxTokens: 100, Temperature: &temp},
	})

	assert.Equal(t, int64(100), params.MaxTokens)
	assert.Equal(t, 0.5, params.Temperature.Value)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be helpful", params.System[0].Text)
	assert.Equal(t, "anthropic", m.Info().Provider)
}

func TestGenerate_Streaming(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		events := [][2]string{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-test","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"ping", `{"type":"ping"}`},
			{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"location\":"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Paris\"}"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":1}`},
			{"content_block_start", `{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_2","name":"get_user_location","input":{}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":""}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":2}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e[0], e[1])
		}
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.Model = "claude-test"
		o.APIKey = "test"
		o.RequestOptions = []option.RequestOption{
			option.WithBaseURL(srv.URL + "/"),
			option.WithMaxRetries(0),
		}
	})

	s := model.Generate(context.Background(), m, model.Request{
		Instructions: "be brief",
		Turns:        []core.Turn{core.NewUserTurn("weather here and in Paris?")},
		Stream:       true,
	})

	var frags []model.Fragment
	for {
		f, ok, err := s.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		frags = append(frags, f)
	}

	require.Len(t, frags, 5)
	assert.Equal(t, model.TextDelta{Text: "Checking"}, frags[0])
	// Content block 1 becomes tool index 0, block 2 becomes index 1.
	assert.Equal(t, model.ToolCallDelta{Index: 0, ID: "toolu_1", Name: "get_weather"}, frags[1])
	assert.Equal(t, model.ToolCallDelta{Index: 0, Arguments: `{"location":`}, frags[2])
	assert.Equal(t, model.ToolCallDelta{Index: 0, Arguments: `"Paris"}`}, frags[3])
	assert.Equal(t, model.ToolCallDelta{Index: 1, ID: "toolu_2", Name: "get_user_location"}, frags[4])

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "claude-test", body["model"])
}
