package quizgate

import (
	"encoding/json"
	"strings"
)

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Usage holds token accounting for a single completion.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	TotalTokens     int `json:"total_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}

// ContentBlockType classifies one parsed block of model output.
type ContentBlockType string

const (
	BlockText      ContentBlockType = "text"
	BlockReasoning ContentBlockType = "reasoning"
	BlockToolCall  ContentBlockType = "tool_call"
	BlockUnknown   ContentBlockType = "unknown"
)

// ContentBlock is one typed fragment of a model reply.
type ContentBlock struct {
	Type     ContentBlockType `json:"type"`
	Text     string           `json:"text,omitempty"`
	ToolCall *ToolCall        `json:"tool_call,omitempty"`
}

// ChatResult is the extended completion shape: final text plus parsed
// blocks, reasoning transcript and token usage.
type ChatResult struct {
	Text      string         `json:"text"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Usage     Usage          `json:"usage"`
}

// HasReasoning reports whether the model surfaced a reasoning transcript.
func (r ChatResult) HasReasoning() bool {
	return r.Reasoning != ""
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// ResolveSessionID picks the effective session id for a request.
// Precedence: explicit id, then "<namespace>:<chatID>" when a chat id is
// given, then empty (stateless call). An empty namespace falls back to
// defaultNS.
func ResolveSessionID(sessionID, chatID, namespace, defaultNS string) string {
	if s := strings.TrimSpace(sessionID); s != "" {
		return s
	}
	c := strings.TrimSpace(chatID)
	if c == "" {
		return ""
	}
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = defaultNS
	}
	return ns + ":" + c
}
