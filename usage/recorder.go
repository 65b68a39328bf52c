// Package usage records daily LLM token consumption in Postgres and
// exposes aggregate reads for the usage API.
package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
)

// Row is one day of accumulated usage. Counters only grow; Version
// increments on every update.
type Row struct {
	Date            time.Time `json:"date"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	ReasoningTokens int64     `json:"reasoning_tokens"`
	RequestCount    int64     `json:"request_count"`
	Version         int64     `json:"version"`
}

// querier is the slice of pgxpool.Pool the recorder needs; swapped out in
// tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS daily_usage (
	usage_date       DATE PRIMARY KEY,
	input_tokens     BIGINT NOT NULL DEFAULT 0 CHECK (input_tokens >= 0),
	output_tokens    BIGINT NOT NULL DEFAULT 0 CHECK (output_tokens >= 0),
	reasoning_tokens BIGINT NOT NULL DEFAULT 0 CHECK (reasoning_tokens >= 0),
	request_count    BIGINT NOT NULL DEFAULT 0 CHECK (request_count >= 0),
	version          BIGINT NOT NULL DEFAULT 1
)`

// upsertSQL is a single atomic statement so concurrent writers never lose
// increments.
const upsertSQL = `
INSERT INTO daily_usage (usage_date, input_tokens, output_tokens, reasoning_tokens, request_count, version)
VALUES ($1, $2, $3, $4, 1, 1)
ON CONFLICT (usage_date) DO UPDATE SET
	input_tokens     = daily_usage.input_tokens + EXCLUDED.input_tokens,
	output_tokens    = daily_usage.output_tokens + EXCLUDED.output_tokens,
	reasoning_tokens = daily_usage.reasoning_tokens + EXCLUDED.reasoning_tokens,
	request_count    = daily_usage.request_count + 1,
	version          = daily_usage.version + 1`

// Recorder accumulates token usage into the daily_usage table. The pool is
// created lazily on first use so the service can start before Postgres is
// reachable. Recording failures are logged, never raised.
type Recorder struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	db      querier
	connect func(ctx context.Context) (querier, error)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithQuerier injects a pre-built database handle, bypassing lazy pool
// creation. Used in tests.
func WithQuerier(db querier) RecorderOption {
	return func(r *Recorder) { r.db = db }
}

// WithClock overrides the time source for date bucketing.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(cfg config.DatabaseConfig, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	r.connect = func(ctx context.Context) (querier, error) {
		return pgxpool.New(ctx, cfg.DSN())
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pool returns the database handle, creating the pool on first call.
func (r *Recorder) pool(ctx context.Context) (querier, error) {
	if db := r.loadDB(); db != nil {
		return db, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		db, err := r.connect(ctx)
		if err != nil {
			return nil, err
		}
		r.db = db
	}
	return r.db, nil
}

func (r *Recorder) loadDB() querier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db
}

// EnsureSchema creates the usage table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	db, err := r.pool(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, schemaSQL)
	return err
}

// Record folds one completion's token counts into today's row. Calls with
// no input and no output tokens are skipped. Errors are logged only, so a
// dead database never fails a request.
func (r *Recorder) Record(ctx context.Context, usage quizgate.Usage) {
	if usage.InputTokens <= 0 && usage.OutputTokens <= 0 {
		return
	}
	db, err := r.pool(ctx)
	if err != nil {
		r.logger.Warn("usage_db_unavailable", "err", err)
		return
	}
	date := r.now().UTC().Truncate(24 * time.Hour)
	if _, err := db.Exec(ctx, upsertSQL, date, usage.InputTokens, usage.OutputTokens, usage.ReasoningTokens); err != nil {
		r.logger.Warn("usage_record_failed", "err", err,
			"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
}

// Daily returns the row for one date, zero-valued when no usage exists.
func (r *Recorder) Daily(ctx context.Context, date time.Time) (Row, error) {
	db, err := r.pool(ctx)
	if err != nil {
		return Row{}, err
	}
	date = date.UTC().Truncate(24 * time.Hour)
	row := Row{Date: date}
	err = db.QueryRow(ctx,
		`SELECT input_tokens, output_tokens, reasoning_tokens, request_count, version
		 FROM daily_usage WHERE usage_date = $1`, date).
		Scan(&row.InputTokens, &row.OutputTokens, &row.ReasoningTokens, &row.RequestCount, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{Date: date}, nil
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Recent returns up to days rows, newest first.
func (r *Recorder) Recent(ctx context.Context, days int) ([]Row, error) {
	if days <= 0 {
		days = 7
	}
	db, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx,
		`SELECT usage_date, input_tokens, output_tokens, reasoning_tokens, request_count, version
		 FROM daily_usage ORDER BY usage_date DESC LIMIT $1`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.Date, &row.InputTokens, &row.OutputTokens, &row.ReasoningTokens, &row.RequestCount, &row.Version); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// totalWindowDays bounds the Total aggregate to the trailing month.
const totalWindowDays = 30

// Total returns the sum over the last 30 days. COALESCE keeps the result
// zero-valued when the window holds no rows.
func (r *Recorder) Total(ctx context.Context) (Row, error) {
	db, err := r.pool(ctx)
	if err != nil {
		return Row{}, err
	}
	cutoff := r.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -totalWindowDays)
	var row Row
	err = db.QueryRow(ctx,
		`SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(reasoning_tokens), 0), COALESCE(SUM(request_count), 0)
		 FROM daily_usage WHERE usage_date >= $1`, cutoff).
		Scan(&row.InputTokens, &row.OutputTokens, &row.ReasoningTokens, &row.RequestCount)
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Range returns the rows between start and end inclusive, oldest first.
func (r *Recorder) Range(ctx context.Context, start, end time.Time) ([]Row, error) {
	db, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	rows, err := db.Query(ctx,
		`SELECT usage_date, input_tokens, output_tokens, reasoning_tokens, request_count, version
		 FROM daily_usage WHERE usage_date BETWEEN $1 AND $2 ORDER BY usage_date`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.Date, &row.InputTokens, &row.OutputTokens, &row.ReasoningTokens, &row.RequestCount, &row.Version); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases the pool when one was created.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.db.(*pgxpool.Pool); ok {
		p.Close()
	}
	r.db = nil
}
