// Package gemini is a facade over the Google Gemini REST API with per-task
// instance caching, API-key rotation, thinking-configuration resolution and
// typed error translation.
package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
)

// Request is one chat invocation: prompt plus optional system text, prior
// history, model override and task tag.
type Request struct {
	Prompt       string
	SystemPrompt string
	History      []quizgate.ChatMessage
	Model        string
	Task         string
}

// UsageCallback receives token usage after each successful call.
type UsageCallback func(ctx context.Context, usage quizgate.Usage)

// Client is the LLM client facade. Instances are cached per (model, task)
// because thinking configuration is baked in at construction.
type Client struct {
	cfg        config.GeminiConfig
	logger     *slog.Logger
	httpClient *http.Client
	models     *lru.Cache[string, *Model]
	onUsage    UsageCallback

	keyMu  sync.Mutex
	keyIdx int

	cacheMu   sync.Mutex
	retryBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithUsageCallback installs the token usage hook.
func WithUsageCallback(cb UsageCallback) Option {
	return func(c *Client) { c.onUsage = cb }
}

// WithRetryBaseDelay sets the initial backoff delay (default 1s).
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// New builds a Client. The key pool may be empty; calls will then fail with
// a typed error rather than construction.
func New(cfg config.GeminiConfig, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		retryBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}
	}
	size := cfg.ModelCacheSize
	if size <= 0 {
		size = 1
	}
	models, err := lru.New[string, *Model](size)
	if err != nil {
		return nil, err
	}
	c.models = models
	return c, nil
}

// nextKey selects the next API key in strict round-robin.
func (c *Client) nextKey() (string, error) {
	if len(c.cfg.APIKeys) == 0 {
		return "", quizgate.ErrLLM("no API keys configured")
	}
	c.keyMu.Lock()
	idx := c.keyIdx
	c.keyIdx++
	c.keyMu.Unlock()
	return c.cfg.APIKeys[idx%len(c.cfg.APIKeys)], nil
}

// instance returns the cached Model for (model, task), building it on miss.
func (c *Client) instance(modelOverride, task string) *Model {
	name := modelOverride
	if name == "" {
		name = c.cfg.ModelForTask(task)
	}
	cacheKey := name + "|" + task

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if m, ok := c.models.Get(cacheKey); ok {
		return m
	}

	m := &Model{
		name:            name,
		temperature:     c.cfg.Temperature,
		maxOutputTokens: c.cfg.MaxTokens,
		httpClient:      c.httpClient,
	}
	if config.IsGemini3(name) {
		// Premium thinking models take a categorical level and a forced
		// temperature of 1.0.
		m.temperature = 1.0
		m.thinkingLevel = normalizeThinkingLevel(c.cfg.Thinking.LevelForTask(task))
	} else if budget := c.cfg.Thinking.BudgetForTask(task); budget > 0 {
		m.thinkingBudget = budget
	}

	c.models.Add(cacheKey, m)
	c.logger.Debug("gemini_instance_created", "model", name, "task", task)
	return m
}

// normalizeThinkingLevel maps configured levels onto what premium models
// accept: low stays low, medium maps to high, none/unknown is omitted.
func normalizeThinkingLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return "low"
	case "medium", "high":
		return "high"
	default:
		return ""
	}
}

// maxAttempts derives the retry budget, capped by failover attempts across
// the key pool.
func (c *Client) maxAttempts() int {
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	if c.cfg.FailoverAttempts > 0 && len(c.cfg.APIKeys) > 0 {
		if limit := c.cfg.FailoverAttempts * len(c.cfg.APIKeys); limit < attempts {
			attempts = limit
		}
	}
	return attempts
}

// generate runs the retry loop, rotating keys per attempt, and translates
// the final error.
func (c *Client) generate(ctx context.Context, req Request, schema json.RawMessage) (*geminiResponse, error) {
	m := c.instance(req.Model, req.Task)
	greq := generateRequest{
		system:   req.SystemPrompt,
		messages: append(req.History, quizgate.UserMessage(req.Prompt)),
		schema:   schema,
	}

	resp, err := retryCall(ctx, c.maxAttempts(), c.retryBase, c.logger, func(int) (*geminiResponse, error) {
		key, err := c.nextKey()
		if err != nil {
			return nil, err
		}
		return m.generate(ctx, key, greq)
	})
	if err != nil {
		return nil, translate(err)
	}
	c.reportUsage(ctx, extractUsage(resp))
	return resp, nil
}

func (c *Client) reportUsage(ctx context.Context, usage quizgate.Usage) {
	if c.onUsage == nil {
		return
	}
	c.onUsage(ctx, usage)
}

// Chat returns the response text.
func (c *Client) Chat(ctx context.Context, req Request) (string, error) {
	resp, err := c.generate(ctx, req, nil)
	if err != nil {
		return "", err
	}
	result, _ := extractResult(resp)
	return result.Text, nil
}

// ChatWithUsage returns text, content blocks, reasoning and token usage.
func (c *Client) ChatWithUsage(ctx context.Context, req Request) (quizgate.ChatResult, error) {
	resp, err := c.generate(ctx, req, nil)
	if err != nil {
		return quizgate.ChatResult{}, err
	}
	result, _ := extractResult(resp)
	return result, nil
}

// ChatWithTools returns text plus requested tool calls.
func (c *Client) ChatWithTools(ctx context.Context, req Request, tools []quizgate.ToolDefinition) (quizgate.ChatResult, []quizgate.ToolCall, error) {
	m := c.instance(req.Model, req.Task)
	greq := generateRequest{
		system:   req.SystemPrompt,
		messages: append(req.History, quizgate.UserMessage(req.Prompt)),
		tools:    tools,
	}

	resp, err := retryCall(ctx, c.maxAttempts(), c.retryBase, c.logger, func(int) (*geminiResponse, error) {
		key, err := c.nextKey()
		if err != nil {
			return nil, err
		}
		return m.generate(ctx, key, greq)
	})
	if err != nil {
		return quizgate.ChatResult{}, nil, translate(err)
	}
	c.reportUsage(ctx, extractUsage(resp))
	result, toolCalls := extractResult(resp)
	return result, toolCalls, nil
}

// Structured enforces a JSON schema on the response and decodes it.
func (c *Client) Structured(ctx context.Context, req Request, schema json.RawMessage) (map[string]any, error) {
	resp, err := c.generate(ctx, req, schema)
	if err != nil {
		return nil, err
	}
	result, _ := extractResult(resp)
	payload := strings.TrimSpace(result.Text)
	if payload == "" {
		return nil, quizgate.ErrLLMParsing("empty structured response")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, quizgate.ErrLLMParsing("structured response is not valid JSON").WithCause(err)
	}
	return parsed, nil
}

// ChatStream streams response text deltas into ch, closing it when done.
func (c *Client) ChatStream(ctx context.Context, req Request, ch chan<- string) error {
	defer close(ch)

	m := c.instance(req.Model, req.Task)
	key, err := c.nextKey()
	if err != nil {
		return translate(err)
	}
	greq := generateRequest{
		system:   req.SystemPrompt,
		messages: append(req.History, quizgate.UserMessage(req.Prompt)),
	}

	var usage quizgate.Usage
	err = m.stream(ctx, key, greq, func(chunk streamChunk) {
		if chunk.text != "" {
			ch <- chunk.text
		}
		if chunk.usage != nil {
			usage = *chunk.usage
		}
	})
	if err != nil {
		return translate(err)
	}
	c.reportUsage(ctx, usage)
	return nil
}

// StreamEvents streams typed events into ch. Exactly one terminal DONE or
// ERROR event is emitted, then the channel is closed. Mid-stream failures
// become a single ERROR event rather than propagating.
func (c *Client) StreamEvents(ctx context.Context, req Request, ch chan<- quizgate.StreamEvent) {
	defer close(ch)

	m := c.instance(req.Model, req.Task)
	key, err := c.nextKey()
	if err != nil {
		ch <- quizgate.StreamEvent{Type: quizgate.EventError, Error: translate(err).Error()}
		return
	}
	greq := generateRequest{
		system:   req.SystemPrompt,
		messages: append(req.History, quizgate.UserMessage(req.Prompt)),
	}

	var usage quizgate.Usage
	err = m.stream(ctx, key, greq, func(chunk streamChunk) {
		if chunk.reasoning != "" {
			ch <- quizgate.StreamEvent{Type: quizgate.EventReasoning, Content: chunk.reasoning}
		}
		if chunk.text != "" {
			ch <- quizgate.StreamEvent{Type: quizgate.EventToken, Content: chunk.text}
		}
		if chunk.usage != nil {
			usage = *chunk.usage
		}
	})
	if err != nil {
		ch <- quizgate.StreamEvent{Type: quizgate.EventError, Error: translate(err).Error()}
		return
	}
	if usage != (quizgate.Usage{}) {
		ch <- quizgate.StreamEvent{Type: quizgate.EventUsage, Usage: &usage}
	}
	c.reportUsage(ctx, usage)
	ch <- quizgate.StreamEvent{Type: quizgate.EventDone}
}
