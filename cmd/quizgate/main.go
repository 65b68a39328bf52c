package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/guard"
	"github.com/nevindra/quizgate/health"
	"github.com/nevindra/quizgate/internal/config"
	"github.com/nevindra/quizgate/nlp"
	"github.com/nevindra/quizgate/prompt"
	"github.com/nevindra/quizgate/provider/gemini"
	"github.com/nevindra/quizgate/server"
	"github.com/nevindra/quizgate/session"
	"github.com/nevindra/quizgate/turtlesoup"
	"github.com/nevindra/quizgate/twentyq"
	"github.com/nevindra/quizgate/usage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("QUIZGATE_CONFIG"), "path to TOML config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// NLP + guard. The analyzer's anomaly score feeds the guard.
	analyzer := nlp.NewAnalyzer(nlp.WithLogger(logger))
	g := guard.New(cfg.Guard,
		guard.WithLogger(logger),
		guard.WithAnomalyScorer(analyzer.AnomalyScore))
	logger.Info("guard_ready", "enabled", g.Enabled(), "packs", g.PackCount())

	// Usage accounting: durable recorder plus in-process counters.
	recorder := usage.NewRecorder(cfg.Database, usage.WithLogger(logger))
	defer recorder.Close()
	if err := recorder.EnsureSchema(ctx); err != nil {
		logger.Warn("usage_schema_failed", "err", err)
	}
	tracker := usage.NewTracker()
	metrics, err := usage.NewMetrics()
	if err != nil {
		return err
	}

	llm, err := gemini.New(cfg.Gemini,
		gemini.WithLogger(logger),
		gemini.WithUsageCallback(func(ctx context.Context, u quizgate.Usage) {
			recorder.Record(ctx, u)
			tracker.Observe("llm", u, 0)
		}))
	if err != nil {
		return err
	}

	// Session store: redis when enabled, in-memory otherwise.
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	var store session.Store
	var readyPing func(context.Context) error
	if cfg.Redis.Enabled {
		redisStore, err := session.NewRedisStore(cfg.Redis.URL, ttl)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store = redisStore
		readyPing = redisStore.Ping
		logger.Info("session_store_ready", "backend", "redis")
	} else {
		store = session.NewMemoryStore()
		logger.Info("session_store_ready", "backend", "memory")
	}
	sessions := session.NewManager(cfg.Session, store, session.WithLogger(logger))

	tqPrompts, err := prompt.NewTwentyQ()
	if err != nil {
		return err
	}
	tsPrompts, err := prompt.NewTurtleSoup()
	if err != nil {
		return err
	}
	puzzles := turtlesoup.NewLoader("", turtlesoup.WithLoaderLogger(logger))

	srv := server.New(cfg, server.Deps{
		Guard:      g,
		NLP:        analyzer,
		LLM:        llm,
		Sessions:   sessions,
		Usage:      recorder,
		Tracker:    tracker,
		Metrics:    metrics,
		TwentyQ:    twentyq.NewPipeline(llm, tqPrompts, sessions, cfg, twentyq.WithLogger(logger)),
		TurtleSoup: turtlesoup.NewPipeline(llm, tsPrompts, sessions, puzzles, cfg, turtlesoup.WithLogger(logger)),
		Puzzles:    puzzles,
		ReadyPing:  readyPing,
	}, server.WithLogger(logger))

	monitor := health.NewMonitor(cfg.Health, health.WithLogger(logger))
	if monitor.Enabled() {
		go monitor.Run(ctx)
	}

	httpServer := srv.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", httpServer.Addr, "http2", cfg.HTTP.HTTP2Enabled)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
