// Package server exposes the gateway over HTTP: LLM access, session
// management, guard and NLP inspection, usage reads and the two game
// pipelines.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/guard"
	"github.com/nevindra/quizgate/internal/config"
	"github.com/nevindra/quizgate/nlp"
	"github.com/nevindra/quizgate/provider/gemini"
	"github.com/nevindra/quizgate/session"
	"github.com/nevindra/quizgate/turtlesoup"
	"github.com/nevindra/quizgate/twentyq"
	"github.com/nevindra/quizgate/usage"
)

// LLM is the slice of the Gemini client the HTTP layer uses directly.
type LLM interface {
	Chat(ctx context.Context, req gemini.Request) (string, error)
	ChatWithUsage(ctx context.Context, req gemini.Request) (quizgate.ChatResult, error)
	Structured(ctx context.Context, req gemini.Request, schema json.RawMessage) (map[string]any, error)
	ChatStream(ctx context.Context, req gemini.Request, ch chan<- string) error
	StreamEvents(ctx context.Context, req gemini.Request, ch chan<- quizgate.StreamEvent)
}

// UsageReader reads durable usage accounting.
type UsageReader interface {
	Daily(ctx context.Context, date time.Time) (usage.Row, error)
	Recent(ctx context.Context, days int) ([]usage.Row, error)
	Range(ctx context.Context, start, end time.Time) ([]usage.Row, error)
	Total(ctx context.Context) (usage.Row, error)
}

// Deps holds the injected dependencies for the Server.
type Deps struct {
	Guard      *guard.Guard
	NLP        *nlp.Analyzer
	LLM        LLM
	Sessions   *session.Manager
	Usage      UsageReader
	Tracker    *usage.Tracker
	Metrics    *usage.Metrics
	TwentyQ    *twentyq.Pipeline
	TurtleSoup *turtlesoup.Pipeline
	Puzzles    *turtlesoup.Loader
	// ReadyPing performs the deep backend probe for /health/ready.
	// Nil means no deep check.
	ReadyPing func(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	cfg      config.Config
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a Server.
func New(cfg config.Config, deps Deps, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		validate: validator.New(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/llm/chat", s.handleChat)
	mux.HandleFunc("POST /api/llm/chat-with-usage", s.handleChatWithUsage)
	mux.HandleFunc("POST /api/llm/structured", s.handleStructured)
	mux.HandleFunc("POST /api/llm/stream", s.handleStream)
	mux.HandleFunc("POST /api/llm/stream-events", s.handleStreamEvents)
	mux.HandleFunc("GET /api/llm/usage", s.handleLLMUsage)
	mux.HandleFunc("GET /api/llm/usage/total", s.handleUsageTotal)
	mux.HandleFunc("GET /api/llm/metrics", s.handleLLMMetrics)

	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSessionMessages)

	mux.HandleFunc("POST /api/guard/evaluations", s.handleGuardEvaluation)
	mux.HandleFunc("POST /api/guard/checks", s.handleGuardCheck)

	mux.HandleFunc("POST /api/nlp/analyses", s.handleNLPAnalysis)
	mux.HandleFunc("POST /api/nlp/anomaly-scores", s.handleNLPAnomalyScore)
	mux.HandleFunc("POST /api/nlp/heuristics", s.handleNLPHeuristics)

	mux.HandleFunc("GET /api/usage/daily", s.handleUsageDaily)
	mux.HandleFunc("GET /api/usage/recent", s.handleUsageRecent)
	mux.HandleFunc("GET /api/usage/range", s.handleUsageRange)
	mux.HandleFunc("GET /api/usage/total", s.handleUsageTotal)

	mux.HandleFunc("POST /api/twentyq/hints", s.handleTwentyQHints)
	mux.HandleFunc("POST /api/twentyq/answers", s.handleTwentyQAnswer)
	mux.HandleFunc("POST /api/twentyq/verifications", s.handleTwentyQVerify)
	mux.HandleFunc("POST /api/twentyq/normalizations", s.handleTwentyQNormalize)
	mux.HandleFunc("POST /api/twentyq/synonym-checks", s.handleTwentyQSynonym)

	mux.HandleFunc("POST /api/turtle-soup/answers", s.handleTurtleAnswer)
	mux.HandleFunc("POST /api/turtle-soup/hints", s.handleTurtleHint)
	mux.HandleFunc("POST /api/turtle-soup/validations", s.handleTurtleValidate)
	mux.HandleFunc("POST /api/turtle-soup/reveals", s.handleTurtleReveal)
	mux.HandleFunc("POST /api/turtle-soup/rewrites", s.handleTurtleRewrite)
	mux.HandleFunc("POST /api/turtle-soup/puzzles", s.handleTurtleGenerate)
	mux.HandleFunc("GET /api/turtle-soup/puzzles", s.handlePuzzleList)
	mux.HandleFunc("GET /api/turtle-soup/puzzles/random", s.handlePuzzleRandom)
	mux.HandleFunc("GET /api/turtle-soup/puzzles/{id}", s.handlePuzzleByID)
	mux.HandleFunc("POST /api/turtle-soup/puzzles/reload", s.handlePuzzleReload)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleHealthLive)
	mux.HandleFunc("GET /health/ready", s.handleHealthReady)
	mux.HandleFunc("GET /health/models", s.handleHealthModels)

	return s.withRequestID(s.withSpan(s.withAccessLog(mux)))
}

// HTTPServer builds the listener with h2c when HTTP/2 cleartext is enabled.
func (s *Server) HTTPServer() *http.Server {
	handler := s.Handler()
	if s.cfg.HTTP.HTTP2Enabled {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	return &http.Server{
		Addr:              s.cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ensureSafe gates player input on the injection guard.
func (s *Server) ensureSafe(ctx context.Context, text string) error {
	if s.deps.Guard == nil {
		return nil
	}
	ev := s.deps.Guard.Evaluate(ctx, text)
	if !ev.Malicious() {
		return nil
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveGuardBlock(ctx, ev.Score)
	}
	return quizgate.ErrGuardBlocked(ev.Score, ev.Threshold)
}
