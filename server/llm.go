package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/provider/gemini"
)

type chatRequest struct {
	Prompt       string                 `json:"prompt" validate:"required"`
	SystemPrompt string                 `json:"system_prompt"`
	History      []quizgate.ChatMessage `json:"history"`
	Model        string                 `json:"model"`
	Task         string                 `json:"task"`
	SessionID    string                 `json:"session_id"`
}

func (r chatRequest) toGemini() gemini.Request {
	return gemini.Request{
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		History:      r.History,
		Model:        r.Model,
		Task:         r.Task,
	}
}

// sessionHistory loads and trims the session history when the request is
// session-bound. The session's access time refreshes on read.
func (s *Server) sessionHistory(r *http.Request, req *chatRequest) error {
	if req.SessionID == "" {
		return nil
	}
	ctx := r.Context()
	record, err := s.deps.Sessions.Get(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if record == nil {
		return quizgate.ErrSessionNotFound(req.SessionID)
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = record.SystemPrompt
	}
	if req.Model == "" {
		req.Model = record.Model
	}
	history, err := s.deps.Sessions.History(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if max := s.cfg.Session.HistoryMaxPairs * 2; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	req.History = history
	return nil
}

// recordExchange appends the user/assistant pair for session-bound chats.
func (s *Server) recordExchange(r *http.Request, sessionID, prompt, reply string) {
	if sessionID == "" {
		return
	}
	err := s.deps.Sessions.AddMessages(r.Context(), sessionID, []quizgate.ChatMessage{
		quizgate.UserMessage(prompt),
		quizgate.AssistantMessage(reply),
	})
	if err != nil {
		s.logger.Warn("session_append_failed", "session_id", sessionID, "err", err)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Prompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessionHistory(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.deps.LLM.Chat(r.Context(), req.toGemini())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.recordExchange(r, req.SessionID, req.Prompt, text)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"text":       text,
		"session_id": req.SessionID,
	})
}

func (s *Server) handleChatWithUsage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Prompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessionHistory(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.deps.LLM.ChatWithUsage(r.Context(), req.toGemini())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveUsage(r.Context(), req.Task, result.Usage,
			float64(time.Since(start).Microseconds())/1000)
	}
	s.recordExchange(r, req.SessionID, req.Prompt, result.Text)
	s.writeJSON(w, r, http.StatusOK, result)
}

type structuredRequest struct {
	chatRequest
	Schema json.RawMessage `json:"schema" validate:"required"`
}

func (s *Server) handleStructured(w http.ResponseWriter, r *http.Request) {
	var req structuredRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateSchema(req.Schema); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Prompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessionHistory(r, &req.chatRequest); err != nil {
		s.writeError(w, r, err)
		return
	}

	parsed, err := s.deps.LLM.Structured(r.Context(), req.toGemini(), req.Schema)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"data": parsed})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Prompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessionHistory(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ch := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.deps.LLM.ChatStream(r.Context(), req.toGemini(), ch)
	}()

	flusher, _ := w.(http.Flusher)
	wrote := false
	for chunk := range ch {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		fmt.Fprint(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := <-errCh; err != nil {
		if !wrote {
			s.writeError(w, r, err)
			return
		}
		// Headers are out; the truncated body is all we can signal with.
		s.logger.Warn("stream_aborted", "err", err, "request_id", RequestIDFrom(r.Context()))
	}
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Prompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessionHistory(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ch := make(chan quizgate.StreamEvent)
	go s.deps.LLM.StreamEvents(r.Context(), req.toGemini(), ch)

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for event := range ch {
		if err := enc.Encode(event); err != nil {
			s.logger.Warn("stream_encode_failed", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleLLMUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.deps.Tracker.Snapshot())
}

func (s *Server) handleLLMMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"requests":         snap.Requests,
		"total_tokens":     snap.TotalTokens,
		"input_tokens":     snap.InputTokens,
		"output_tokens":    snap.OutputTokens,
		"reasoning_tokens": snap.ReasoningTokens,
		"avg_duration_ms":  snap.AvgDurationMs,
		"by_task":          snap.ByTask,
		"uptime_seconds":   snap.UptimeSeconds,
	})
}

// schemaSpec mirrors the accepted subset: a flat object whose properties
// are primitives or arrays of primitives.
type schemaSpec struct {
	Type       string `json:"type"`
	Properties map[string]struct {
		Type  string `json:"type"`
		Items *struct {
			Type string `json:"type"`
		} `json:"items"`
	} `json:"properties"`
}

func primitiveType(t string) bool {
	switch t {
	case "string", "number", "integer", "boolean":
		return true
	}
	return false
}

func validateSchema(raw json.RawMessage) error {
	var spec schemaSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return quizgate.ErrInvalidInput("schema is not valid JSON").WithCause(err)
	}
	if spec.Type != "object" {
		return quizgate.ErrInvalidInput("schema root must be an object type")
	}
	if len(spec.Properties) == 0 {
		return quizgate.ErrInvalidInput("schema must declare at least one property")
	}
	for name, prop := range spec.Properties {
		switch {
		case primitiveType(prop.Type):
		case prop.Type == "array":
			if prop.Items == nil || !primitiveType(prop.Items.Type) {
				return quizgate.ErrInvalidInput(
					fmt.Sprintf("schema property '%s' must be an array of primitives", name))
			}
		default:
			return quizgate.ErrInvalidInput(
				fmt.Sprintf("schema property '%s' has unsupported type '%s'", name, prop.Type))
		}
	}
	return nil
}
