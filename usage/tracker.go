package usage

import (
	"sync"
	"time"

	"github.com/nevindra/quizgate"
)

// Tracker keeps in-process token accounting for the metrics endpoints. It
// resets with the process; the Recorder owns durable accounting.
type Tracker struct {
	mu              sync.Mutex
	started         time.Time
	requests        int64
	inputTokens     int64
	outputTokens    int64
	reasoningTokens int64
	totalDurationMs float64
	byTask          map[string]int64
}

// Snapshot is a point-in-time view of the in-process counters.
type Snapshot struct {
	Requests        int64            `json:"requests"`
	InputTokens     int64            `json:"input_tokens"`
	OutputTokens    int64            `json:"output_tokens"`
	TotalTokens     int64            `json:"total_tokens"`
	ReasoningTokens int64            `json:"reasoning_tokens"`
	AvgDurationMs   float64          `json:"avg_duration_ms"`
	ByTask          map[string]int64 `json:"by_task"`
	UptimeSeconds   float64          `json:"uptime_seconds"`
}

func NewTracker() *Tracker {
	return &Tracker{
		started: time.Now(),
		byTask:  make(map[string]int64),
	}
}

// Observe counts one completed LLM call.
func (t *Tracker) Observe(task string, usage quizgate.Usage, durationMs float64) {
	if task == "" {
		task = "default"
	}
	t.mu.Lock()
	t.requests++
	t.inputTokens += int64(usage.InputTokens)
	t.outputTokens += int64(usage.OutputTokens)
	t.reasoningTokens += int64(usage.ReasoningTokens)
	t.totalDurationMs += durationMs
	t.byTask[task]++
	t.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	byTask := make(map[string]int64, len(t.byTask))
	for k, v := range t.byTask {
		byTask[k] = v
	}
	snap := Snapshot{
		Requests:        t.requests,
		InputTokens:     t.inputTokens,
		OutputTokens:    t.outputTokens,
		TotalTokens:     t.inputTokens + t.outputTokens,
		ReasoningTokens: t.reasoningTokens,
		ByTask:          byTask,
		UptimeSeconds:   time.Since(t.started).Seconds(),
	}
	if t.requests > 0 {
		snap.AvgDurationMs = t.totalDurationMs / float64(t.requests)
	}
	return snap
}
