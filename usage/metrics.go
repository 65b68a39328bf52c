package usage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/quizgate"
)

const scopeName = "github.com/nevindra/quizgate/usage"

// Metrics emits token and request counters through the global OTEL meter
// provider. With no SDK installed the instruments are no-ops.
type Metrics struct {
	requests    metric.Int64Counter
	tokens      metric.Int64Counter
	guardBlocks metric.Int64Counter
	llmDuration metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(scopeName)

	requests, err := meter.Int64Counter("llm.requests",
		metric.WithDescription("LLM request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	tokens, err := meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	guardBlocks, err := meter.Int64Counter("guard.blocks",
		metric.WithDescription("Inputs rejected by the injection guard"),
		metric.WithUnit("{block}"))
	if err != nil {
		return nil, err
	}
	llmDuration, err := meter.Float64Histogram("llm.duration",
		metric.WithDescription("LLM call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requests:    requests,
		tokens:      tokens,
		guardBlocks: guardBlocks,
		llmDuration: llmDuration,
	}, nil
}

// ObserveUsage counts one completed LLM call.
func (m *Metrics) ObserveUsage(ctx context.Context, task string, usage quizgate.Usage, durationMs float64) {
	attrs := metric.WithAttributes(attribute.String("llm.task", task))
	m.requests.Add(ctx, 1, attrs)
	m.tokens.Add(ctx, int64(usage.InputTokens), attrs, metric.WithAttributes(attribute.String("direction", "input")))
	m.tokens.Add(ctx, int64(usage.OutputTokens), attrs, metric.WithAttributes(attribute.String("direction", "output")))
	m.llmDuration.Record(ctx, durationMs, attrs)
}

// ObserveGuardBlock counts one guard rejection.
func (m *Metrics) ObserveGuardBlock(ctx context.Context, score float64) {
	m.guardBlocks.Add(ctx, 1, metric.WithAttributes(attribute.Float64("guard.score", score)))
}
