package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nevindra/quizgate"
)

var baseURL = "https://generativelanguage.googleapis.com/v1beta"

// Model is one cached client instance bound to a (model, task) tuple.
// Thinking configuration and temperature are baked in at construction.
type Model struct {
	name            string
	temperature     float64
	maxOutputTokens int
	thinkingLevel   string // categorical level for premium models; "" = omit
	thinkingBudget  int    // token budget for older models; 0 = omit
	httpClient      *http.Client
}

type generateRequest struct {
	system   string
	messages []quizgate.ChatMessage
	tools    []quizgate.ToolDefinition
	schema   json.RawMessage
}

// buildBody constructs the generateContent request body.
func (m *Model) buildBody(req generateRequest) map[string]any {
	var contents []map[string]any
	for _, msg := range req.messages {
		if msg.Role == "system" {
			continue
		}
		contents = append(contents, map[string]any{
			"role":  mapRole(msg.Role),
			"parts": []map[string]any{{"text": msg.Content}},
		})
	}

	body := map[string]any{"contents": contents}

	system := req.system
	for _, msg := range req.messages {
		if msg.Role == "system" && msg.Content != "" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		}
	}
	if system != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": system}},
		}
	}

	if len(req.tools) > 0 {
		declarations := make([]map[string]any, 0, len(req.tools))
		for _, t := range req.tools {
			var params any
			if len(t.Parameters) > 0 {
				if err := json.Unmarshal(t.Parameters, &params); err != nil {
					params = map[string]any{}
				}
			} else {
				params = map[string]any{}
			}
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": declarations}}
	}

	genConfig := map[string]any{
		"temperature":     m.temperature,
		"maxOutputTokens": m.maxOutputTokens,
	}
	switch {
	case m.thinkingLevel != "":
		genConfig["thinkingConfig"] = map[string]any{
			"thinkingLevel":   m.thinkingLevel,
			"includeThoughts": true,
		}
	case m.thinkingBudget > 0:
		genConfig["thinkingConfig"] = map[string]any{
			"thinkingBudget": m.thinkingBudget,
		}
	}
	if len(req.schema) > 0 {
		genConfig["responseMimeType"] = "application/json"
		var schemaObj any
		if err := json.Unmarshal(req.schema, &schemaObj); err == nil {
			genConfig["responseSchema"] = schemaObj
		}
	}
	body["generationConfig"] = genConfig

	return body
}

// generate performs one non-streaming generateContent call with the given key.
func (m *Model) generate(ctx context.Context, apiKey string, req generateRequest) (*geminiResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, m.name, apiKey)

	payload, err := json.Marshal(m.buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &parsed, nil
}

// streamChunk is one parsed SSE chunk: text/thought deltas plus the running
// usage snapshot (last chunk wins).
type streamChunk struct {
	text      string
	reasoning string
	usage     *quizgate.Usage
}

// stream performs a streamGenerateContent call, invoking emit per chunk.
func (m *Model) stream(ctx context.Context, apiKey string, req generateRequest, emit func(streamChunk)) error {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", baseURL, m.name, apiKey)

	payload, err := json.Marshal(m.buildBody(req))
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newStatusError(resp, string(b))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	// SSE data payloads may be split across lines; accumulate until the JSON
	// balances.
	var jsonBuf strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			if jsonBuf.Len() > 0 {
				jsonBuf.WriteString(line)
				if isCompleteJSON(jsonBuf.String()) {
					emitChunk(jsonBuf.String(), emit)
					jsonBuf.Reset()
				}
			}
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}
		if isCompleteJSON(data) {
			emitChunk(data, emit)
		} else {
			jsonBuf.Reset()
			jsonBuf.WriteString(data)
		}
	}
	if jsonBuf.Len() > 0 && isCompleteJSON(jsonBuf.String()) {
		emitChunk(jsonBuf.String(), emit)
	}
	return scanner.Err()
}

func emitChunk(jsonStr string, emit func(streamChunk)) {
	var parsed geminiResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return
	}

	var chunk streamChunk
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Text == nil {
				continue
			}
			if part.Thought {
				chunk.reasoning += *part.Text
			} else {
				chunk.text += *part.Text
			}
		}
	}
	if parsed.UsageMetadata != nil {
		u := extractUsage(&parsed)
		chunk.usage = &u
	}
	if chunk.text == "" && chunk.reasoning == "" && chunk.usage == nil {
		return
	}
	emit(chunk)
}

func mapRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}

// ---- Response types ----

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text         *string         `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}

// extractUsage surfaces thought tokens as reasoning tokens; output counts
// candidates plus thoughts.
func extractUsage(resp *geminiResponse) quizgate.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return quizgate.Usage{}
	}
	meta := resp.UsageMetadata
	return quizgate.Usage{
		InputTokens:     meta.PromptTokenCount,
		OutputTokens:    meta.CandidatesTokenCount + meta.ThoughtsTokenCount,
		TotalTokens:     meta.TotalTokenCount,
		ReasoningTokens: meta.ThoughtsTokenCount,
	}
}

// extractResult assembles text, reasoning, content blocks, tool calls and
// usage from a full response.
func extractResult(resp *geminiResponse) (quizgate.ChatResult, []quizgate.ToolCall) {
	var result quizgate.ChatResult
	var toolCalls []quizgate.ToolCall
	var text, reasoning strings.Builder

	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, quizgate.ToolCall{
					ID:   part.FunctionCall.Name,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
				result.Blocks = append(result.Blocks, quizgate.ContentBlock{
					Type: quizgate.BlockToolCall,
					Text: part.FunctionCall.Name,
				})
				continue
			}
			if part.Text == nil {
				continue
			}
			if part.Thought {
				if reasoning.Len() > 0 {
					reasoning.WriteString("\n")
				}
				reasoning.WriteString(*part.Text)
				result.Blocks = append(result.Blocks, quizgate.ContentBlock{
					Type: quizgate.BlockReasoning,
					Text: *part.Text,
				})
				continue
			}
			text.WriteString(*part.Text)
			result.Blocks = append(result.Blocks, quizgate.ContentBlock{
				Type: quizgate.BlockText,
				Text: *part.Text,
			})
		}
	}

	result.Text = text.String()
	result.Reasoning = reasoning.String()
	result.Usage = extractUsage(resp)
	return result, toolCalls
}

// isCompleteJSON checks whether a string has balanced braces/brackets.
func isCompleteJSON(s string) bool {
	depth := 0
	inString := false
	escape := false

	for _, ch := range s {
		if escape {
			escape = false
			continue
		}
		if ch == '\\' && inString {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return depth == 0 && !inString
}
