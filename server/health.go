package server

import (
	"net/http"
	"time"
)

func (s *Server) checkpointBackend() string {
	if s.cfg.Redis.Enabled {
		return "redis"
	}
	return "memory"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.started).Seconds(),
		"components": map[string]any{
			"checkpoint": map[string]any{
				"backend": s.checkpointBackend(),
			},
			"gemini": map[string]any{
				"default_model":  s.cfg.Gemini.DefaultModel,
				"keys_available": len(s.cfg.Gemini.APIKeys) > 0,
			},
			"guard": map[string]any{
				"enabled": s.deps.Guard != nil && s.deps.Guard.Enabled(),
			},
			"sessions": map[string]any{
				"active": s.deps.Sessions.Count(r.Context()),
				"max":    s.cfg.Session.MaxSessions,
			},
		},
	})
}

// handleHealthLive is the shallow probe; process up means live.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

// handleHealthReady pings the durable backends before reporting ready.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyPing != nil {
		if err := s.deps.ReadyPing(r.Context()); err != nil {
			s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleHealthModels(w http.ResponseWriter, r *http.Request) {
	gem := s.cfg.Gemini
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"default": gem.DefaultModel,
		"by_task": map[string]string{
			"hints":  gem.ModelForTask("hints"),
			"answer": gem.ModelForTask("answer"),
			"verify": gem.ModelForTask("verify"),
		},
		"cache_size": gem.ModelCacheSize,
	})
}
