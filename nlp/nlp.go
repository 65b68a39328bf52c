// Package nlp provides Korean morphological analysis: tokenization, an
// anomaly score for injection screening, and closed-vocabulary heuristics
// for answer validation.
package nlp

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Anomaly signal thresholds and contributions.
const (
	unknownRatioHigh   = 0.6
	unknownRatioMedium = 0.4
	unknownRatioLow    = 0.2

	unknownScoreHigh   = 0.4
	unknownScoreMedium = 0.3
	unknownScoreLow    = 0.1

	tokenLengthLow    = 0.6
	tokenLengthMedium = 0.8
	tokenLengthHigh   = 1.0

	tokenLengthScoreHigh   = 0.3
	tokenLengthScoreMedium = 0.2
	tokenLengthScoreLow    = 0.1

	hangulRatioLow    = 0.2
	hangulRatioMedium = 0.4

	hangulScoreMedium = 0.2
	hangulScoreLow    = 0.1

	contentRatioThreshold   = 0.15
	minTokenCountForContent = 3
	fallbackAnomalyScore    = 0.5
	emptyTokenAnomalyScore  = 0.8
	minTextLengthForAnomaly = 3
)

var (
	incompleteHangulPattern = regexp.MustCompile(`[ㄱ-ㅎㅏ-ㅣ]{2,}`)
	emoticonPattern         = regexp.MustCompile(`[ㅋㅎ]{2,}`)
)

// Closed vocabularies for answer-validation heuristics.
var (
	unitNouns = wordSet(
		"글자", "자", "음절", "문자", "토큰", "개", "번", "번째",
		"회", "차례", "모음", "자음", "초성", "중성", "종성", "받침",
	)
	boundaryWords = wordSet(
		"처음", "끝", "마지막", "시작", "중간", "가운데", "초성", "중성", "종성", "받침",
	)
	comparisonWords = wordSet("이상", "이하", "초과", "미만", "넘", "이내")
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Heuristics flags structural properties of a question that matter when
// validating answers about word shape (length, position, comparison).
type Heuristics struct {
	NumericQuantifier bool `json:"numeric_quantifier"`
	UnitNoun          bool `json:"unit_noun"`
	BoundaryRef       bool `json:"boundary_ref"`
	ComparisonWord    bool `json:"comparison_word"`
}

// Analyzer wraps a Tokenizer with lazy, concurrency-safe initialization.
type Analyzer struct {
	logger *slog.Logger

	mu        sync.Mutex
	tokenizer Tokenizer
	factory   func() Tokenizer
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithTokenizer replaces the built-in heuristic tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(a *Analyzer) { a.factory = func() Tokenizer { return t } }
}

// NewAnalyzer builds an Analyzer. The tokenizer itself is constructed on
// first use.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		factory: func() Tokenizer { return heuristicTokenizer{} },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// get initializes the tokenizer on first use, once, under concurrency.
func (a *Analyzer) get() Tokenizer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tokenizer == nil {
		a.logger.Info("nlp_tokenizer_init")
		a.tokenizer = a.factory()
	}
	return a.tokenizer
}

// Analyze tokenizes text. Blank input or tokenizer failure yields an empty
// result, never an error.
func (a *Analyzer) Analyze(ctx context.Context, text string) []Token {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	tokens, err := a.get().Tokenize(text)
	if err != nil {
		a.logger.Error("nlp_analyze_failed", "err", err)
		return nil
	}
	return tokens
}

// AnomalyScore rates text in [0,1]; higher means more likely adversarial.
// The score sums four signals: unknown-token ratio, average token length,
// incomplete-Hangul presence, and content-word ratio.
func (a *Analyzer) AnomalyScore(ctx context.Context, text string) (float64, error) {
	if utf8.RuneCountInString(text) < minTextLengthForAnomaly {
		return 0, nil
	}

	tokens, err := a.get().Tokenize(text)
	if err != nil {
		a.logger.Warn("nlp_anomaly_fallback", "err", err)
		return fallbackAnomalyScore, nil
	}
	if len(tokens) == 0 {
		return emptyTokenAnomalyScore, nil
	}

	score := scoreUnknownTokens(tokens) +
		scoreTokenLength(tokens) +
		scoreIncompleteHangul(text) +
		scoreContentRatio(tokens)

	return clamp01(score), nil
}

// AnalyzeHeuristics flags the closed-vocabulary signals. Degrades to all
// false on tokenizer failure.
func (a *Analyzer) AnalyzeHeuristics(ctx context.Context, text string) Heuristics {
	tokens := a.Analyze(ctx, text)
	if len(tokens) == 0 {
		return Heuristics{}
	}

	var h Heuristics
	for _, t := range tokens {
		if t.Tag == TagNumeral {
			h.NumericQuantifier = true
		}
		if _, ok := unitNouns[t.Form]; ok {
			h.UnitNoun = true
		}
		if _, ok := boundaryWords[t.Form]; ok {
			h.BoundaryRef = true
		}
		if _, ok := comparisonWords[t.Form]; ok {
			h.ComparisonWord = true
		}
	}
	return h
}

func scoreUnknownTokens(tokens []Token) float64 {
	unknown := 0
	for _, t := range tokens {
		if t.Tag == TagUnknown || strings.HasPrefix(t.Tag, "UNK") {
			unknown++
		}
	}
	ratio := float64(unknown) / float64(len(tokens))
	switch {
	case ratio > unknownRatioHigh:
		return unknownScoreHigh
	case ratio > unknownRatioMedium:
		return unknownScoreMedium
	case ratio > unknownRatioLow:
		return unknownScoreLow
	}
	return 0
}

func scoreTokenLength(tokens []Token) float64 {
	total := 0
	for _, t := range tokens {
		total += t.Length
	}
	avg := float64(total) / float64(len(tokens))
	switch {
	case avg < tokenLengthLow:
		return tokenLengthScoreHigh
	case avg < tokenLengthMedium:
		return tokenLengthScoreMedium
	case avg < tokenLengthHigh:
		return tokenLengthScoreLow
	}
	return 0
}

func scoreIncompleteHangul(text string) float64 {
	if text == "" {
		return 0
	}
	hangul, total := 0, 0
	for _, r := range text {
		total++
		if isSyllable(r) {
			hangul++
		}
	}
	ratio := float64(hangul) / float64(total)

	if !incompleteHangulPattern.MatchString(text) || emoticonPattern.MatchString(text) {
		return 0
	}
	switch {
	case ratio < hangulRatioLow:
		return hangulScoreMedium
	case ratio < hangulRatioMedium:
		return hangulScoreLow
	}
	return 0
}

func scoreContentRatio(tokens []Token) float64 {
	if len(tokens) <= minTokenCountForContent {
		return 0
	}
	content := 0
	for _, t := range tokens {
		if isContentTag(t.Tag) {
			content++
		}
	}
	if float64(content)/float64(len(tokens)) < contentRatioThreshold {
		return contentRatioThreshold
	}
	return 0
}

func isContentTag(tag string) bool {
	return strings.HasPrefix(tag, "NN") ||
		strings.HasPrefix(tag, "VV") ||
		strings.HasPrefix(tag, "VA") ||
		tag == TagNumeral
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
