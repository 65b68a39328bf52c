package twentyq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
	"github.com/nevindra/quizgate/prompt"
	"github.com/nevindra/quizgate/provider/gemini"
	"github.com/nevindra/quizgate/session"
	"github.com/nevindra/quizgate/toon"
)

// retryHint is appended to the prompt when the first answer fails to parse.
const retryHint = "\n\n반드시 다음 중 하나만 출력: 예 | 아마도 예 | 아마도 아니오 | 아니오"

// LLM is the slice of the Gemini client the pipeline needs.
type LLM interface {
	Chat(ctx context.Context, req gemini.Request) (string, error)
	Structured(ctx context.Context, req gemini.Request, schema json.RawMessage) (map[string]any, error)
}

var (
	hintsSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"hints": {"type": "array", "items": {"type": "string"}}},
		"required": ["hints"]
	}`)
	verifySchema = json.RawMessage(`{
		"type": "object",
		"properties": {"result": {"type": "string", "enum": ["정답", "근접", "오답"]}},
		"required": ["result"]
	}`)
	normalizeSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"normalized": {"type": "string"}},
		"required": ["normalized"]
	}`)
	synonymSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"result": {"type": "string", "enum": ["동일", "상이"]}},
		"required": ["result"]
	}`)
)

// Pipeline wires the twenty-questions operations together.
type Pipeline struct {
	llm      LLM
	prompts  *prompt.TwentyQ
	sessions *session.Manager
	cfg      config.Config
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

func NewPipeline(llm LLM, prompts *prompt.TwentyQ, sessions *session.Manager, cfg config.Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		llm:      llm,
		prompts:  prompts,
		sessions: sessions,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// withDeadline applies the uniform LLM timeout envelope.
func (p *Pipeline) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(p.cfg.Gemini.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// wrapErr folds non-typed failures into the taxonomy, tagging the operation
// and session.
func wrapErr(err error, op, sessionID string) error {
	if err == nil {
		return nil
	}
	var typed *quizgate.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return quizgate.ErrLLMTimeout(fmt.Sprintf("%s timed out", op)).WithCause(err)
	}
	e := quizgate.ErrLLMModel(fmt.Sprintf("%s failed", op)).WithCause(err)
	if sessionID != "" {
		return e.WithDetails(map[string]any{"session_id": sessionID})
	}
	return e
}

// Hints generates hint candidates for a secret.
func (p *Pipeline) Hints(ctx context.Context, target, category string) (HintsResponse, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	secret := toon.EncodeSecret(target, category, nil)
	parsed, err := p.llm.Structured(ctx, gemini.Request{
		Prompt:       p.prompts.HintsUser(secret),
		SystemPrompt: p.prompts.HintsSystem(category),
		Task:         "hints",
	}, hintsSchema)
	if err != nil {
		return HintsResponse{}, wrapErr(err, "twentyq.hints", "")
	}

	var hints []string
	if raw, ok := parsed["hints"].([]any); ok {
		for _, h := range raw {
			if s, ok := h.(string); ok {
				hints = append(hints, s)
			}
		}
	}
	return HintsResponse{Hints: hints}, nil
}

// AnswerRequest is one yes/no question against a secret.
type AnswerRequest struct {
	Question  string
	Target    string
	Category  string
	SessionID string
	ChatID    string
	Namespace string
}

// Answer grades a question on the 4-step scale, using recent session
// history as context and retrying once with an explicit format hint when
// the reply does not parse.
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	sessionID := quizgate.ResolveSessionID(req.SessionID, req.ChatID, req.Namespace, "twentyq")
	if sessionID != "" && req.SessionID == "" {
		if _, err := p.sessions.Create(ctx, sessionID, p.cfg.Gemini.DefaultModel, ""); err != nil {
			return AnswerResponse{}, err
		}
	}

	historyContext := ""
	if sessionID != "" {
		history, err := p.sessions.History(ctx, sessionID)
		if err != nil {
			return AnswerResponse{}, err
		}
		header := fmt.Sprintf("[이전 질문/답변 기록 - 정답: %s]", req.Target)
		historyContext = strings.TrimSpace(HistoryContext(history, header, p.cfg.Session.HistoryMaxPairs))
		p.logger.Info("twentyq_answer",
			"session_id", sessionID,
			"history_messages", len(history),
			"question", truncate(req.Question, 30))
	}

	secret := toon.EncodeSecret(req.Target, req.Category, nil)
	userPrompt := p.prompts.AnswerUser(secret, req.Question, historyContext)

	rawText, scale, ok, err := p.answerOnce(ctx, userPrompt, sessionID)
	if err != nil {
		return AnswerResponse{}, err
	}
	if !ok {
		p.logger.Warn("twentyq_answer_retry", "session_id", sessionID, "raw", truncate(rawText, 40))
		rawText, scale, ok, err = p.answerOnce(ctx, userPrompt+retryHint, sessionID)
		if err != nil {
			return AnswerResponse{}, err
		}
	}

	scaleText := "UNKNOWN"
	if ok {
		scaleText = string(scale)
	}
	if sessionID != "" {
		err := p.sessions.AddMessages(ctx, sessionID, []quizgate.ChatMessage{
			quizgate.UserMessage("Q: " + req.Question),
			quizgate.AssistantMessage("A: " + scaleText),
		})
		if err != nil {
			return AnswerResponse{}, err
		}
	}

	resp := AnswerResponse{RawText: rawText, SessionID: sessionID}
	if ok {
		resp.Scale = string(scale)
	}
	return resp, nil
}

func (p *Pipeline) answerOnce(ctx context.Context, userPrompt, sessionID string) (string, AnswerScale, bool, error) {
	callCtx, cancel := p.withDeadline(ctx)
	defer cancel()

	rawText, err := p.llm.Chat(callCtx, gemini.Request{
		Prompt:       userPrompt,
		SystemPrompt: p.prompts.AnswerSystem(),
		Task:         "answer",
	})
	if err != nil {
		return "", "", false, wrapErr(err, "twentyq.answer", sessionID)
	}
	scale, ok := ParseAnswerScale(rawText)
	return rawText, scale, ok, nil
}

// Verify grades a guess against the target. Structured output first, plain
// text scan as fallback.
func (p *Pipeline) Verify(ctx context.Context, target, guess string) (VerifyResponse, error) {
	req := gemini.Request{
		Prompt:       p.prompts.VerifyUser(target, guess),
		SystemPrompt: p.prompts.VerifySystem(),
		Task:         "verify",
	}

	callCtx, cancel := p.withDeadline(ctx)
	parsed, err := p.llm.Structured(callCtx, req, verifySchema)
	cancel()
	if err == nil {
		if result, ok := parsed["result"].(string); ok {
			if verdict, found := ParseVerifyResult(result); found {
				return VerifyResponse{Result: string(verdict), RawText: result}, nil
			}
		}
	}

	p.logger.Warn("twentyq_verify_fallback", "err", err)
	callCtx, cancel = p.withDeadline(ctx)
	defer cancel()
	rawText, err := p.llm.Chat(callCtx, req)
	if err != nil {
		return VerifyResponse{}, wrapErr(err, "twentyq.verify", "")
	}
	resp := VerifyResponse{RawText: rawText}
	if verdict, found := ParseVerifyResult(rawText); found {
		resp.Result = string(verdict)
	}
	return resp, nil
}

// Normalize cleans up a player question, falling back to the original on
// any failure.
func (p *Pipeline) Normalize(ctx context.Context, question string) (NormalizeResponse, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	parsed, err := p.llm.Structured(ctx, gemini.Request{
		Prompt:       p.prompts.NormalizeUser(question),
		SystemPrompt: p.prompts.NormalizeSystem(),
	}, normalizeSchema)
	if err != nil {
		p.logger.Warn("twentyq_normalize_fallback", "err", err)
		return NormalizeResponse{Normalized: question, Original: question}, nil
	}

	normalized, _ := parsed["normalized"].(string)
	if strings.TrimSpace(normalized) == "" {
		normalized = question
	}
	return NormalizeResponse{Normalized: normalized, Original: question}, nil
}

// Synonym checks semantic equivalence of target and guess, with a plain
// text fallback.
func (p *Pipeline) Synonym(ctx context.Context, target, guess string) (SynonymResponse, error) {
	req := gemini.Request{
		Prompt:       p.prompts.SynonymUser(target, guess),
		SystemPrompt: p.prompts.SynonymSystem(),
	}

	callCtx, cancel := p.withDeadline(ctx)
	parsed, err := p.llm.Structured(callCtx, req, synonymSchema)
	cancel()
	if err == nil {
		if result, ok := parsed["result"].(string); ok {
			if verdict, found := ParseSynonymResult(result); found {
				return SynonymResponse{Result: string(verdict), RawText: result}, nil
			}
		}
	}

	p.logger.Warn("twentyq_synonym_fallback", "err", err)
	callCtx, cancel = p.withDeadline(ctx)
	defer cancel()
	rawText, err := p.llm.Chat(callCtx, req)
	if err != nil {
		return SynonymResponse{}, wrapErr(err, "twentyq.synonym", "")
	}
	resp := SynonymResponse{RawText: rawText}
	if verdict, found := ParseSynonymResult(rawText); found {
		resp.Result = string(verdict)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
