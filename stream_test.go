package quizgate

import (
	"encoding/json"
	"testing"
)

func TestStreamEventTerminal(t *testing.T) {
	tests := []struct {
		event StreamEvent
		want  bool
	}{
		{StreamEvent{Type: EventToken, Content: "예"}, false},
		{StreamEvent{Type: EventReasoning, Content: "..."}, false},
		{StreamEvent{Type: EventUsage, Usage: &Usage{TotalTokens: 3}}, false},
		{StreamEvent{Type: EventDone}, true},
		{StreamEvent{Type: EventError, Error: "boom"}, true},
	}
	for _, tt := range tests {
		if got := tt.event.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.event.Type, got, tt.want)
		}
	}
}

func TestStreamEventWireOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(StreamEvent{Type: EventDone})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"done"}` {
		t.Errorf("wire = %s", data)
	}
}
