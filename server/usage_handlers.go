package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nevindra/quizgate"
)

func (s *Server) handleUsageDaily(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, r, quizgate.ErrInvalidInput("date must be YYYY-MM-DD: "+raw))
			return
		}
		date = parsed
	}
	row, err := s.deps.Usage.Daily(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, row)
}

func (s *Server) handleUsageRecent(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, quizgate.ErrInvalidInput("days must be a positive integer: "+raw))
			return
		}
		days = parsed
	}
	rows, err := s.deps.Usage.Recent(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"days": days,
		"rows": rows,
	})
}

func (s *Server) handleUsageRange(w http.ResponseWriter, r *http.Request) {
	parseDate := func(key string) (time.Time, bool) {
		raw := r.URL.Query().Get(key)
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, r, quizgate.ErrInvalidInput(key+" must be YYYY-MM-DD: "+raw))
			return time.Time{}, false
		}
		return parsed, true
	}
	start, ok := parseDate("start")
	if !ok {
		return
	}
	end, ok := parseDate("end")
	if !ok {
		return
	}
	if end.Before(start) {
		s.writeError(w, r, quizgate.ErrInvalidInput("end must not precede start"))
		return
	}
	rows, err := s.deps.Usage.Range(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"start": start.Format("2006-01-02"),
		"end":   end.Format("2006-01-02"),
		"rows":  rows,
	})
}

func (s *Server) handleUsageTotal(w http.ResponseWriter, r *http.Request) {
	row, err := s.deps.Usage.Total(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, row)
}
