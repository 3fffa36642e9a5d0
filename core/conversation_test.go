package core

import (
	"sync"
	"testing"
)

func TestConversation_AppendPreservesOrder(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserTurn("hi"))
	c.Append(NewAssistantTurn("hello"))
	c.Append(NewUserTurn("bye"))

	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(snap))
	}
	want := []string{"hi", "hello", "bye"}
	for i, w := range want {
		if snap[i].Text() != w {
			t.Fatalf("turn %d: want %q got %q", i, w, snap[i].Text())
		}
	}
}

func TestConversation_SnapshotIsCopy(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserTurn("hi"))

	snap := c.Snapshot()
	snap[0] = NewAssistantTurn("tampered")
	_ = append(snap, NewUserTurn("extra"))

	again := c.Snapshot()
	if len(again) != 1 || again[0].Role != RoleUser || again[0].Text() != "hi" {
		t.Fatalf("snapshot mutation leaked into conversation: %+v", again)
	}
}

func TestConversation_ToolCallResultCorrelation(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserTurn("What's the weather in Paris?"))
	c.Append(NewToolCallTurn(FunctionCall{ID: "call_1", Name: "get_weather", Arguments: `{"location":"Paris"}`}))
	c.Append(NewToolResultTurn(FunctionResponse{ID: "call_1", Name: "get_weather", Response: map[string]any{"tempC": 18}}))

	snap := c.Snapshot()
	if snap[1].Role != RoleToolCall || snap[2].Role != RoleToolResult {
		t.Fatalf("unexpected roles: %s, %s", snap[1].Role, snap[2].Role)
	}
	if snap[1].CallID() != "call_1" || snap[2].CallID() != snap[1].CallID() {
		t.Fatalf("call id correlation lost: %q vs %q", snap[1].CallID(), snap[2].CallID())
	}
	fc, ok := snap[1].FunctionCall()
	if !ok || fc.Name != "get_weather" {
		t.Fatalf("expected function call part, got %+v", snap[1].Part)
	}
	fr, ok := snap[2].FunctionResponse()
	if !ok || fr.IsError() {
		t.Fatalf("expected successful function response, got %+v", snap[2].Part)
	}
}

func TestConversation_Reset(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserTurn("hi"))
	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("expected empty conversation after reset, got %d", c.Len())
	}
	c.Append(NewUserTurn("again"))
	if c.Len() != 1 {
		t.Fatalf("expected 1 turn, got %d", c.Len())
	}
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	c := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(NewUserTurn("x"))
		}()
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Fatalf("expected 50 turns, got %d", c.Len())
	}
}
