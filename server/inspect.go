package server

import (
	"math"
	"net/http"
)

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) handleGuardEvaluation(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev := s.deps.Guard.Evaluate(r.Context(), req.Text)
	// A disabled guard reports an infinite threshold, which JSON cannot carry.
	var threshold any = ev.Threshold
	if math.IsInf(ev.Threshold, 1) {
		threshold = nil
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"score":     ev.Score,
		"hits":      ev.Hits,
		"threshold": threshold,
		"enabled":   s.deps.Guard.Enabled(),
		"malicious": ev.Malicious(),
	})
}

func (s *Server) handleGuardCheck(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"malicious": s.deps.Guard.IsMalicious(r.Context(), req.Text),
	})
}

func (s *Server) handleNLPAnalysis(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens := s.deps.NLP.Analyze(r.Context(), req.Text)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

func (s *Server) handleNLPAnomalyScore(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	score, err := s.deps.NLP.AnomalyScore(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"score": score})
}

func (s *Server) handleNLPHeuristics(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.deps.NLP.AnalyzeHeuristics(r.Context(), req.Text))
}
