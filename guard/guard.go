// Package guard screens user text against prompt-injection rule packs
// before it reaches the model.
package guard

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
)

// Match is one contributing rule hit.
type Match struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// Evaluation is the immutable outcome of scoring one input.
type Evaluation struct {
	Score     float64 `json:"score"`
	Hits      []Match `json:"hits"`
	Threshold float64 `json:"threshold"`
}

// Malicious reports whether the score reached the effective threshold.
func (e Evaluation) Malicious() bool {
	return e.Score >= e.Threshold
}

// AnomalyScorer scores morphological anomaly in [0,1]. Failures degrade to
// a zero contribution.
type AnomalyScorer func(ctx context.Context, text string) (float64, error)

// minAnomalyLength skips the scorer for inputs too short to tokenize.
const minAnomalyLength = 3

// Guard evaluates inputs against compiled rule packs with a TTL cache and
// in-flight deduplication of identical inputs.
type Guard struct {
	cfg     config.GuardConfig
	logger  *slog.Logger
	packs   []pack
	cache   *expirable.LRU[string, Evaluation]
	group   singleflight.Group
	anomaly AnomalyScorer
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithAnomalyScorer installs the morphological anomaly scorer.
func WithAnomalyScorer(scorer AnomalyScorer) Option {
	return func(g *Guard) { g.anomaly = scorer }
}

// New builds a Guard and compiles rule packs from cfg.RulepacksDir when the
// guard is enabled. Pack load failures are logged, never fatal.
func New(cfg config.GuardConfig, opts ...Option) *Guard {
	g := &Guard{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if cfg.CacheSize > 0 && cfg.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		g.cache = expirable.NewLRU[string, Evaluation](cfg.CacheSize, nil, ttl)
	}
	if cfg.Enabled {
		dir := cfg.RulepacksDir
		if dir == "" {
			dir = "rulepacks"
		}
		g.packs = loadPacks(dir, g.logger)
		g.logger.Info("guard_ready", "packs", len(g.packs), "threshold", g.threshold())
	}
	return g
}

// SetAnomalyScorer installs the scorer after construction. Intended for the
// composition root; not safe to race with Evaluate.
func (g *Guard) SetAnomalyScorer(scorer AnomalyScorer) {
	g.anomaly = scorer
}

// PackCount returns the number of compiled rule packs.
func (g *Guard) PackCount() int {
	return len(g.packs)
}

// Enabled reports whether evaluation is active.
func (g *Guard) Enabled() bool {
	return g.cfg.Enabled
}

// Evaluate scores input. Identical concurrent inputs share one computation
// and results are cached per input text.
func (g *Guard) Evaluate(ctx context.Context, input string) Evaluation {
	if !g.cfg.Enabled {
		return Evaluation{Score: 0, Hits: nil, Threshold: math.Inf(1)}
	}
	if g.cache != nil {
		if cached, ok := g.cache.Get(input); ok {
			return cached
		}
	}

	// Waiters must not be torn down by one caller's cancellation, so the
	// shared computation detaches from the caller's deadline.
	detached := context.WithoutCancel(ctx)
	value, _, _ := g.group.Do(input, func() (any, error) {
		result := g.evaluate(detached, input)
		if g.cache != nil {
			g.cache.Add(input, result)
		}
		return result, nil
	})

	if evaluation, ok := value.(Evaluation); ok {
		return evaluation
	}
	return Evaluation{Score: 0, Hits: nil, Threshold: g.threshold()}
}

// EnsureSafe returns a guard-blocked error when input is malicious.
func (g *Guard) EnsureSafe(ctx context.Context, input string) error {
	evaluation := g.Evaluate(ctx, input)
	if evaluation.Malicious() {
		return quizgate.ErrGuardBlocked(evaluation.Score, evaluation.Threshold)
	}
	return nil
}

// IsMalicious is a convenience wrapper around Evaluate.
func (g *Guard) IsMalicious(ctx context.Context, input string) bool {
	return g.Evaluate(ctx, input).Malicious()
}

func (g *Guard) evaluate(ctx context.Context, input string) Evaluation {
	threshold := g.threshold()

	if IsJamoOnly(input) {
		g.logger.Warn("guard_jamo_only_blocked", "input", trimForLog(input))
		return syntheticBlock("jamo_only", threshold)
	}
	if ContainsEmoji(input) {
		g.logger.Warn("guard_emoji_blocked", "input", trimForLog(input))
		return syntheticBlock("emoji_detected", threshold)
	}
	if containsSuspiciousBase64(input) {
		g.logger.Warn("guard_base64_blocked", "input", trimForLog(input))
		return syntheticBlock("base64_payload", threshold)
	}

	normalized := Normalize(input)
	score, hits := g.evaluatePacks(normalized)

	if g.anomaly != nil && utf8.RuneCountInString(input) >= minAnomalyLength {
		anomaly, err := g.anomaly(ctx, input)
		if err != nil {
			g.logger.Warn("guard_anomaly_failed", "err", err)
		} else {
			score += anomaly
			if anomaly > g.cfg.AnomalyThreshold {
				hits = append(hits, Match{ID: "morphological_anomaly", Weight: anomaly})
			}
		}
	}

	return Evaluation{Score: score, Hits: hits, Threshold: threshold}
}

func syntheticBlock(id string, threshold float64) Evaluation {
	return Evaluation{
		Score:     threshold,
		Hits:      []Match{{ID: id, Weight: threshold}},
		Threshold: threshold,
	}
}

// threshold resolves the effective threshold: configured value when
// positive, else the maximum pack threshold, else the default.
func (g *Guard) threshold() float64 {
	if g.cfg.Threshold > 0 {
		return g.cfg.Threshold
	}
	maxThreshold := 0.0
	for _, p := range g.packs {
		if p.threshold > maxThreshold {
			maxThreshold = p.threshold
		}
	}
	if maxThreshold > 0 {
		return maxThreshold
	}
	return defaultPackThreshold
}

func (g *Guard) evaluatePacks(text string) (float64, []Match) {
	total := 0.0
	hits := make([]Match, 0)
	lowered := strings.ToLower(text)

	for _, p := range g.packs {
		for _, rule := range p.regexes {
			if rule.pattern.MatchString(text) {
				total += rule.weight
				hits = append(hits, Match{ID: rule.id, Weight: rule.weight})
			}
		}
		if p.phraseMatcher == nil {
			continue
		}
		indices := p.phraseMatcher.MatchThreadSafe([]byte(lowered))
		// Matcher reports discovery order; hits are emitted in pack order.
		slices.Sort(indices)
		for _, idx := range indices {
			if idx < 0 || idx >= len(p.phrases) {
				continue
			}
			phrase := p.phrases[idx]
			weight := p.phraseWeights[phrase]
			if weight <= 0 {
				continue
			}
			total += weight
			hits = append(hits, Match{ID: "phrase:" + phrase, Weight: weight})
		}
	}
	return total, hits
}

func trimForLog(value string) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= 50 {
		return value
	}
	runes := []rune(value)
	return string(runes[:50])
}
