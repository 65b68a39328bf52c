package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
)

// Record is session metadata. Message history lives in the Store; the
// DomainData map is per-game sidecar state (current puzzle, secret, etc).
type Record struct {
	ID           string         `json:"session_id"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	DomainData   map[string]any `json:"domain_data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
}

// Manager owns the session metadata table and mediates history access
// through the checkpoint store. All metadata mutations happen under one
// mutex; prune+check+insert sequences never interleave.
type Manager struct {
	cfg    config.SessionConfig
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Record
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source, for TTL tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg config.SessionConfig, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		sessions: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ttl() time.Duration {
	return time.Duration(m.cfg.TTLMinutes) * time.Minute
}

// pruneLocked evicts expired sessions and returns their ids. Caller holds
// the mutex. Backing-store cleanup is best-effort.
func (m *Manager) pruneLocked(ctx context.Context) map[string]bool {
	ttl := m.ttl()
	if ttl <= 0 {
		return nil
	}
	now := m.now()
	var expired map[string]bool
	for id, rec := range m.sessions {
		if now.Sub(rec.LastAccessed) > ttl {
			if expired == nil {
				expired = make(map[string]bool)
			}
			expired[id] = true
			delete(m.sessions, id)
			if err := m.store.Delete(ctx, id); err != nil {
				m.logger.Warn("session_prune_history_failed", "session_id", id, "err", err)
			}
			m.logger.Info("session_expired", "session_id", id)
		}
	}
	return expired
}

// Create returns the existing live session for id, refreshing its
// last-accessed time, or installs a new one. History is left untouched.
func (m *Manager) Create(ctx context.Context, id, model, systemPrompt string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)

	if rec, ok := m.sessions[id]; ok {
		rec.LastAccessed = m.now()
		return *rec, nil
	}
	return m.insertLocked(id, model, systemPrompt, nil)
}

// CreateFresh clears any history and metadata for id before installing a
// new session record.
func (m *Manager) CreateFresh(ctx context.Context, id, model, systemPrompt string, domainData map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)

	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn("session_clear_history_failed", "session_id", id, "err", err)
	}
	delete(m.sessions, id)
	return m.insertLocked(id, model, systemPrompt, domainData)
}

func (m *Manager) insertLocked(id, model, systemPrompt string, domainData map[string]any) (Record, error) {
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return Record{}, quizgate.ErrSessionLimit(m.cfg.MaxSessions)
	}
	now := m.now()
	rec := &Record{
		ID:           id,
		Model:        model,
		SystemPrompt: systemPrompt,
		DomainData:   domainData,
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.sessions[id] = rec
	m.logger.Info("session_created", "session_id", id, "model", model)
	return *rec, nil
}

// Get returns the session record, refreshing last-accessed. A session that
// expired just now yields a session-expired error; an unknown id yields
// (nil, nil).
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := m.pruneLocked(ctx)

	if expired[id] {
		return nil, quizgate.ErrSessionExpired(id)
	}
	rec, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	rec.LastAccessed = m.now()
	out := *rec
	return &out, nil
}

// End removes the session and clears its history, reporting whether a
// metadata record existed.
func (m *Manager) End(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)

	_, existed := m.sessions[id]
	delete(m.sessions, id)
	if err := m.store.Delete(ctx, id); err != nil {
		return existed, err
	}
	if existed {
		m.logger.Info("session_ended", "session_id", id)
	}
	return existed, nil
}

// ClearHistory wipes the message log without touching session metadata.
func (m *Manager) ClearHistory(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// AddMessages appends to the session's message log and refreshes
// last-accessed when a metadata record exists.
func (m *Manager) AddMessages(ctx context.Context, id string, messages []quizgate.ChatMessage) error {
	if err := m.store.Append(ctx, id, messages); err != nil {
		return err
	}
	m.mu.Lock()
	if rec, ok := m.sessions[id]; ok {
		rec.LastAccessed = m.now()
	}
	m.mu.Unlock()
	return nil
}

// History returns the full message log in append order.
func (m *Manager) History(ctx context.Context, id string) ([]quizgate.ChatMessage, error) {
	return m.store.History(ctx, id)
}

// SetDomainData merges data into the session's sidecar state.
func (m *Manager) SetDomainData(ctx context.Context, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return quizgate.ErrSessionNotFound(id)
	}
	if rec.DomainData == nil {
		rec.DomainData = make(map[string]any, len(data))
	}
	for k, v := range data {
		rec.DomainData[k] = v
	}
	rec.LastAccessed = m.now()
	return nil
}

// Count reports live sessions after pruning.
func (m *Manager) Count(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(ctx)
	return len(m.sessions)
}
