package turtlesoup

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
	"github.com/nevindra/quizgate/twentyq"
)

// LLM is the slice of the Gemini client the pipeline needs.
type LLM interface {
	Chat(ctx context.Context, req gemini.Request) (string, error)
	Structured(ctx context.Context, req gemini.Request, schema json.RawMessage) (map[string]any, error)
}

var (
	hintSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"hint": {"type": "string"}},
		"required": ["hint"]
	}`)
	puzzleSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"scenario": {"type": "string"},
			"solution": {"type": "string"},
			"category": {"type": "string", "enum": ["MYSTERY", "HORROR", "ABSURD", "LOGIC"]},
			"difficulty": {"type": "integer", "minimum": 1, "maximum": 5},
			"hints": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["title", "scenario", "solution"]
	}`)
	rewriteSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"scenario": {"type": "string"}, "solution": {"type": "string"}},
		"required": ["scenario", "solution"]
	}`)
)

// Pipeline wires the turtle-soup operations together.
type Pipeline struct {
	llm      LLM
	prompts  *prompt.TurtleSoup
	sessions *session.Manager
	loader   *Loader
	cfg      config.Config
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

func NewPipeline(llm LLM, prompts *prompt.TurtleSoup, sessions *session.Manager, loader *Loader, cfg config.Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		llm:      llm,
		prompts:  prompts,
		sessions: sessions,
		loader:   loader,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(p.cfg.Gemini.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

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

// AnswerRequest is one player question against a puzzle.
type AnswerRequest struct {
	Question  string
	Scenario  string
	Solution  string
	SessionID string
	ChatID    string
	Namespace string
}

// Answer grades a player question against the puzzle, tracking Q/A history
// per session and surfacing the importance marker.
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	sessionID := quizgate.ResolveSessionID(req.SessionID, req.ChatID, req.Namespace, "turtle-soup")
	if sessionID != "" && req.SessionID == "" {
		if _, err := p.sessions.Create(ctx, sessionID, p.cfg.Gemini.DefaultModel, ""); err != nil {
			return AnswerResponse{}, err
		}
	}

	var history []quizgate.ChatMessage
	historyContext := ""
	if sessionID != "" {
		var err error
		history, err = p.sessions.History(ctx, sessionID)
		if err != nil {
			return AnswerResponse{}, err
		}
		historyContext = strings.TrimSpace(
			twentyq.HistoryContext(history, "[이전 질문/답변 기록]", p.cfg.Session.HistoryMaxPairs))
		p.logger.Info("turtle_answer", "session_id", sessionID, "history_messages", len(history))
	}

	puzzle := toon.EncodePuzzle(req.Scenario, req.Solution, "", nil)
	callCtx, cancel := p.withDeadline(ctx)
	defer cancel()
	rawText, err := p.llm.Chat(callCtx, gemini.Request{
		Prompt:       p.prompts.AnswerUser(puzzle, req.Question, historyContext),
		SystemPrompt: p.prompts.AnswerSystem(),
		Task:         "answer",
	})
	if err != nil {
		return AnswerResponse{}, wrapErr(err, "turtle_soup.answer", sessionID)
	}

	important := IsImportantMarker(rawText)
	answer, found := ParseAnswerType(rawText)
	if found && answer == AnswerImportant {
		answer = AnswerYes
	}
	if !found && important {
		answer, found = AnswerYes, true
	}
	answerText := FormatAnswerText(answer, found, important, rawText)

	if sessionID != "" {
		err := p.sessions.AddMessages(ctx, sessionID, []quizgate.ChatMessage{
			quizgate.UserMessage("Q: " + req.Question),
			quizgate.AssistantMessage("A: " + answerText),
		})
		if err != nil {
			return AnswerResponse{}, err
		}
	}

	return AnswerResponse{
		Answer:        answerText,
		RawText:       rawText,
		QuestionCount: len(history)/2 + 1,
		History:       buildQAItems(history, req.Question, answerText),
		SessionID:     sessionID,
	}, nil
}

// buildQAItems pairs up prior history and appends the current exchange.
func buildQAItems(history []quizgate.ChatMessage, question, answer string) []QAItem {
	var items []QAItem
	for i := 0; i+1 < len(history); i += 2 {
		items = append(items, QAItem{
			Question: strings.TrimPrefix(history[i].Content, "Q: "),
			Answer:   strings.TrimPrefix(history[i+1].Content, "A: "),
		})
	}
	return append(items, QAItem{Question: question, Answer: answer})
}

// Hint generates one hint at the requested level, falling back to plain
// text with fence stripping when structured output fails.
func (p *Pipeline) Hint(ctx context.Context, scenario, solution string, level int) (HintResponse, error) {
	puzzle := toon.EncodePuzzle(scenario, solution, "", nil)
	req := gemini.Request{
		Prompt:       p.prompts.HintUser(puzzle, level),
		SystemPrompt: p.prompts.HintSystem(),
		Task:         "hints",
	}

	callCtx, cancel := p.withDeadline(ctx)
	parsed, err := p.llm.Structured(callCtx, req, hintSchema)
	cancel()
	if err == nil {
		if hint, ok := parsed["hint"].(string); ok && hint != "" {
			return HintResponse{Hint: hint, Level: level}, nil
		}
	}

	p.logger.Warn("turtle_hint_fallback", "err", err)
	callCtx, cancel = p.withDeadline(ctx)
	defer cancel()
	rawText, err := p.llm.Chat(callCtx, req)
	if err != nil {
		return HintResponse{}, wrapErr(err, "turtle_soup.hints", "")
	}

	hint := stripFence(rawText)
	var payload struct {
		Hint string `json:"hint"`
	}
	if json.Unmarshal([]byte(hint), &payload) == nil && payload.Hint != "" {
		hint = payload.Hint
	}
	return HintResponse{Hint: hint, Level: level}, nil
}

// Validate grades the player's solution attempt as YES, NO or CLOSE.
func (p *Pipeline) Validate(ctx context.Context, solution, playerAnswer string) (ValidationResponse, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	rawText, err := p.llm.Chat(ctx, gemini.Request{
		Prompt:       p.prompts.ValidateUser(solution, playerAnswer),
		SystemPrompt: p.prompts.ValidateSystem(),
		Task:         "verify",
	})
	if err != nil {
		return ValidationResponse{}, wrapErr(err, "turtle_soup.validate", "")
	}

	resp := ValidationResponse{Result: rawText, RawText: rawText}
	if verdict, found := ParseValidationResult(rawText); found {
		resp.Result = string(verdict)
	}
	return resp, nil
}

// Reveal narrates the solution.
func (p *Pipeline) Reveal(ctx context.Context, scenario, solution string) (RevealResponse, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	puzzle := toon.EncodePuzzle(scenario, solution, "", nil)
	narrative, err := p.llm.Chat(ctx, gemini.Request{
		Prompt:       p.prompts.RevealUser(puzzle),
		SystemPrompt: p.prompts.RevealSystem(),
	})
	if err != nil {
		return RevealResponse{}, wrapErr(err, "turtle_soup.reveal", "")
	}
	return RevealResponse{Narrative: narrative}, nil
}

// Generate returns a preset puzzle at the requested difficulty when one
// exists, and otherwise asks the model for a new puzzle with few-shot
// examples from the corpus.
func (p *Pipeline) Generate(ctx context.Context, category string, difficulty int, theme string) (PuzzleResponse, error) {
	if preset, err := p.loader.RandomByDifficulty(difficulty); err == nil {
		p.logger.Info("turtle_generate_preset", "puzzle_id", preset.ID, "difficulty", preset.Difficulty)
		presetCategory := category
		if presetCategory == "" {
			presetCategory = "PRESET"
		}
		id := preset.ID
		return PuzzleResponse{
			Title:      preset.Title,
			Scenario:   preset.Question,
			Solution:   preset.Answer,
			Category:   presetCategory,
			Difficulty: preset.Difficulty,
			Hints:      []string{},
			PuzzleID:   &id,
		}, nil
	}
	p.logger.Info("turtle_generate_preset_miss", "difficulty", difficulty)

	req := gemini.Request{
		Prompt:       p.prompts.GenerateUser(category, difficulty, theme, p.exampleBlock(difficulty)),
		SystemPrompt: p.prompts.GenerateSystem(),
		Task:         "hints",
	}

	callCtx, cancel := p.withDeadline(ctx)
	parsed, err := p.llm.Structured(callCtx, req, puzzleSchema)
	cancel()
	if err != nil {
		p.logger.Warn("turtle_generate_fallback", "err", err)
		callCtx, cancel = p.withDeadline(ctx)
		defer cancel()
		rawText, chatErr := p.llm.Chat(callCtx, req)
		if chatErr != nil {
			return PuzzleResponse{}, wrapErr(chatErr, "turtle_soup.generate", "")
		}
		if jsonErr := json.Unmarshal([]byte(stripFence(rawText)), &parsed); jsonErr != nil {
			return PuzzleResponse{}, quizgate.ErrLLMParsing("puzzle generation returned no parseable JSON").WithCause(jsonErr)
		}
	}

	resp := PuzzleResponse{
		Title:      stringField(parsed, "title", "무제"),
		Scenario:   stringField(parsed, "scenario", ""),
		Solution:   stringField(parsed, "solution", ""),
		Category:   category,
		Difficulty: difficulty,
		Hints:      stringList(parsed, "hints"),
	}
	return resp, nil
}

// exampleBlock renders up to three corpus puzzles for few-shot prompting.
func (p *Pipeline) exampleBlock(difficulty int) string {
	examples := p.loader.Examples(difficulty, 3)
	lines := make([]string, 0, len(examples))
	for _, puzzle := range examples {
		lines = append(lines, strings.Join([]string{
			"- 제목: " + puzzle.Title,
			"  시나리오: " + puzzle.Question,
			"  정답: " + puzzle.Answer,
			fmt.Sprintf("  난이도: %d", puzzle.Difficulty),
		}, "\n"))
	}
	return strings.Join(lines, "\n\n")
}

// Rewrite rephrases a puzzle while preserving its core logic, keeping the
// original on total failure.
func (p *Pipeline) Rewrite(ctx context.Context, title, scenario, solution string, difficulty int) (RewriteResponse, error) {
	req := gemini.Request{
		Prompt:       p.prompts.RewriteUser(title, scenario, solution, difficulty),
		SystemPrompt: p.prompts.RewriteSystem(),
	}
	original := RewriteResponse{
		Scenario:         scenario,
		Solution:         solution,
		OriginalScenario: scenario,
		OriginalSolution: solution,
	}

	callCtx, cancel := p.withDeadline(ctx)
	parsed, err := p.llm.Structured(callCtx, req, rewriteSchema)
	cancel()
	if err != nil {
		p.logger.Warn("turtle_rewrite_fallback", "err", err)
		callCtx, cancel = p.withDeadline(ctx)
		defer cancel()
		rawText, chatErr := p.llm.Chat(callCtx, req)
		if chatErr != nil {
			return RewriteResponse{}, wrapErr(chatErr, "turtle_soup.rewrite", "")
		}
		if json.Unmarshal([]byte(stripFence(rawText)), &parsed) != nil {
			return original, nil
		}
	}

	resp := original
	if s := strings.TrimSpace(stringField(parsed, "scenario", "")); s != "" {
		resp.Scenario = s
	}
	if s := strings.TrimSpace(stringField(parsed, "solution", "")); s != "" {
		resp.Solution = s
	}
	return resp, nil
}

// stripFence unwraps a ```json … ``` code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func stringList(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
