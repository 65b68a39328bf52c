package quizgate

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventToken carries an incremental text chunk from the LLM.
	EventToken StreamEventType = "token"
	// EventReasoning carries an incremental reasoning chunk.
	EventReasoning StreamEventType = "reasoning"
	// EventToolCall signals a tool invocation request.
	EventToolCall StreamEventType = "tool_call"
	// EventUsage carries final token accounting.
	EventUsage StreamEventType = "usage"
	// EventDone terminates a successful stream.
	EventDone StreamEventType = "done"
	// EventError terminates a failed stream.
	EventError StreamEventType = "error"
)

// StreamEvent is a typed event emitted during LLM streaming. Exactly one
// EventDone or EventError terminates the stream; empty fields are omitted
// from the wire encoding.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  string          `json:"content,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Usage    *Usage          `json:"usage,omitempty"`
	Error    string          `json:"error,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
