package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/weathermesh/core"
	"github.com/hupe1980/weathermesh/model"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	call := core.FunctionCall{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Paris"}`}
	call2 := core.FunctionCall{ID: "call_2", Name: "get_weather", Arguments: `{"location":"Rome"}`}

	req := model.Request{
		Instructions: "be helpful",
		Turns: []core.Turn{
			core.NewUserTurn("weather?"),
			core.NewToolCallTurn(call),
			core.NewToolCallTurn(call2),
			core.NewToolResultTurn(core.FunctionResponse{ID: "call_1", Name: "get_weather", Response: map[string]any{"tempC": 18}}),
			core.NewToolResultTurn(core.FunctionResponse{ID: "call_2", Name: "get_weather", Error: "tool timed out"}),
			core.NewAssistantTurn("18C in Paris"),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 6)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 2)
	assert.Equal(t, "call_1", msgs[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "call_2", msgs[2].OfAssistant.ToolCalls[1].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call_1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfTool)
	assert.Equal(t, "call_2", msgs[4].OfTool.ToolCallID)
	assert.NotNil(t, msgs[5].OfAssistant)
}

func TestBuildParams(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gpt-test" })
	seed := int64(42)
	temp := 0.0
	req := model.Request{
		Options: model.GenerationOptions{Seed: &seed, MaxTokens: 16000, Temperature: &temp},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "get_weather",
				Description: "Weather",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
	}

	params := m.buildParams(req, nil)
	assert.Equal(t, "gpt-test", params.Model)
	assert.Equal(t, int64(42), params.Seed.Value)
	assert.Equal(t, int64(16000), params.MaxCompletionTokens.Value)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "get_weather", params.Tools[0].Function.Name)
}

func chunk(delta string) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":%s,"finish_reason":null}]}`, delta)
}

func TestGenerate_Streaming(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			chunk(`{"role":"assistant","content":"Let me check"}`),
			chunk(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"loc"}}]}`),
			chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"Paris\"}"}}]}`),
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.Model = "gpt-test"
		o.RequestOptions = []option.RequestOption{
			option.WithBaseURL(srv.URL + "/"),
			option.WithAPIKey("test"),
			option.WithMaxRetries(0),
		}
	})

	s := model.Generate(context.Background(), m, model.Request{
		Turns:  []core.Turn{core.NewUserTurn("weather in Paris?")},
		Stream: true,
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

	require.Len(t, frags, 3)
	assert.Equal(t, model.TextDelta{Text: "Let me check"}, frags[0])
	assert.Equal(t, model.ToolCallDelta{Index: 0, ID: "call_1", Name: "get_weather", Arguments: `{"loc`}, frags[1])
	assert.Equal(t, model.ToolCallDelta{Index: 0, Arguments: `ation":"Paris"}`}, frags[2])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "gpt-test", body["model"])
}

func TestNewAzureModel_Validation(t *testing.T) {
	_, err := NewAzureModel(AzureOptions{})
	assert.Error(t, err)

	m, err := NewAzureModel(AzureOptions{
		Endpoint:   "https://example.openai.azure.com",
		APIVersion: "2024-10-21",
		Deployment: "gpt-4o",
		APIKey:     "key",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "azure", SupportsTools: true}, m.Info())
}
