package server

import (
	"net/http"

	"github.com/nevindra/quizgate"
)

type sessionCreateRequest struct {
	SessionID    string         `json:"session_id"`
	ChatID       string         `json:"chat_id"`
	Namespace    string         `json:"namespace"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	DomainData   map[string]any `json:"domain_data"`
	Fresh        bool           `json:"fresh"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	id := quizgate.ResolveSessionID(req.SessionID, req.ChatID, req.Namespace, "session")
	if id == "" {
		id = quizgate.NewID()
	}
	model := req.Model
	if model == "" {
		model = s.cfg.Gemini.DefaultModel
	}

	existing, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		existing = nil // just expired; treated as a fresh create
	}

	if req.Fresh {
		rec, err := s.deps.Sessions.CreateFresh(ctx, id, model, req.SystemPrompt, req.DomainData)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusCreated, map[string]any{
			"session_id": rec.ID,
			"model":      rec.Model,
			"created":    true,
		})
		return
	}

	rec, err := s.deps.Sessions.Create(ctx, id, model, req.SystemPrompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created := existing == nil
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	s.writeJSON(w, r, status, map[string]any{
		"session_id": rec.ID,
		"model":      rec.Model,
		"created":    created,
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	record, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if record == nil {
		s.writeError(w, r, quizgate.ErrSessionNotFound(id))
		return
	}
	history, err := s.deps.Sessions.History(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"session":  record,
		"history":  history,
		"messages": len(history),
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.deps.Sessions.End(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"session_id": id,
		"removed":    removed,
	})
}

type sessionMessagesRequest struct {
	Messages []quizgate.ChatMessage `json:"messages" validate:"required,min=1"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req sessionMessagesRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if record == nil {
		s.writeError(w, r, quizgate.ErrSessionNotFound(id))
		return
	}
	if err := s.deps.Sessions.AddMessages(r.Context(), id, req.Messages); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"session_id": id,
		"appended":   len(req.Messages),
	})
}
