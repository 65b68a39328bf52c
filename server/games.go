package server

import (
	"net/http"
	"strconv"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/turtlesoup"
	"github.com/nevindra/quizgate/twentyq"
)

type twentyQHintsRequest struct {
	Target   string `json:"target" validate:"required"`
	Category string `json:"category" validate:"required"`
}

func (s *Server) handleTwentyQHints(w http.ResponseWriter, r *http.Request) {
	var req twentyQHintsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TwentyQ.Hints(r.Context(), req.Target, req.Category)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type twentyQAnswerRequest struct {
	Question  string `json:"question" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Category  string `json:"category"`
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	Namespace string `json:"namespace"`
}

func (s *Server) handleTwentyQAnswer(w http.ResponseWriter, r *http.Request) {
	var req twentyQAnswerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Question); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TwentyQ.Answer(r.Context(), twentyq.AnswerRequest{
		Question:  req.Question,
		Target:    req.Target,
		Category:  req.Category,
		SessionID: req.SessionID,
		ChatID:    req.ChatID,
		Namespace: req.Namespace,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type twentyQGuessRequest struct {
	Target string `json:"target" validate:"required"`
	Guess  string `json:"guess" validate:"required"`
}

func (s *Server) handleTwentyQVerify(w http.ResponseWriter, r *http.Request) {
	var req twentyQGuessRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TwentyQ.Verify(r.Context(), req.Target, req.Guess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleTwentyQNormalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TwentyQ.Normalize(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleTwentyQSynonym(w http.ResponseWriter, r *http.Request) {
	var req twentyQGuessRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TwentyQ.Synonym(r.Context(), req.Target, req.Guess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type turtleAnswerRequest struct {
	Question  string `json:"question" validate:"required"`
	Scenario  string `json:"scenario" validate:"required"`
	Solution  string `json:"solution" validate:"required"`
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	Namespace string `json:"namespace"`
}

func (s *Server) handleTurtleAnswer(w http.ResponseWriter, r *http.Request) {
	var req turtleAnswerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ensureSafe(r.Context(), req.Question); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TurtleSoup.Answer(r.Context(), turtlesoup.AnswerRequest{
		Question:  req.Question,
		Scenario:  req.Scenario,
		Solution:  req.Solution,
		SessionID: req.SessionID,
		ChatID:    req.ChatID,
		Namespace: req.Namespace,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type turtleHintRequest struct {
	Scenario string `json:"scenario" validate:"required"`
	Solution string `json:"solution" validate:"required"`
	Level    int    `json:"level" validate:"min=0,max=3"`
}

func (s *Server) handleTurtleHint(w http.ResponseWriter, r *http.Request) {
	var req turtleHintRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Level == 0 {
		req.Level = 1
	}
	resp, err := s.deps.TurtleSoup.Hint(r.Context(), req.Scenario, req.Solution, req.Level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleTurtleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Solution     string `json:"solution" validate:"required"`
		PlayerAnswer string `json:"player_answer" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TurtleSoup.Validate(r.Context(), req.Solution, req.PlayerAnswer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleTurtleReveal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario string `json:"scenario" validate:"required"`
		Solution string `json:"solution" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TurtleSoup.Reveal(r.Context(), req.Scenario, req.Solution)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type turtleGenerateRequest struct {
	Category   string `json:"category"`
	Difficulty int    `json:"difficulty" validate:"min=0,max=5"`
	Theme      string `json:"theme"`
}

func (s *Server) handleTurtleGenerate(w http.ResponseWriter, r *http.Request) {
	var req turtleGenerateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Difficulty == 0 {
		req.Difficulty = 3
	}
	resp, err := s.deps.TurtleSoup.Generate(r.Context(), req.Category, req.Difficulty, req.Theme)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type turtleRewriteRequest struct {
	Title      string `json:"title"`
	Scenario   string `json:"scenario" validate:"required"`
	Solution   string `json:"solution" validate:"required"`
	Difficulty int    `json:"difficulty" validate:"min=0,max=5"`
}

func (s *Server) handleTurtleRewrite(w http.ResponseWriter, r *http.Request) {
	var req turtleRewriteRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.TurtleSoup.Rewrite(r.Context(), req.Title, req.Scenario, req.Solution, req.Difficulty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handlePuzzleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"puzzles":       s.deps.Puzzles.All(),
		"count":         s.deps.Puzzles.Count(),
		"by_difficulty": s.deps.Puzzles.CountByDifficulty(),
	})
}

func (s *Server) handlePuzzleRandom(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("difficulty"); raw != "" {
		difficulty, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, quizgate.ErrInvalidInput("difficulty must be an integer: "+raw))
			return
		}
		puzzle, err := s.deps.Puzzles.RandomByDifficulty(difficulty)
		if err != nil {
			s.writeError(w, r, quizgate.ErrInvalidInput(err.Error()))
			return
		}
		s.writeJSON(w, r, http.StatusOK, puzzle)
		return
	}
	puzzle, err := s.deps.Puzzles.Random()
	if err != nil {
		s.writeError(w, r, quizgate.ErrInvalidInput(err.Error()))
		return
	}
	s.writeJSON(w, r, http.StatusOK, puzzle)
}

func (s *Server) handlePuzzleByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, quizgate.ErrInvalidInput("puzzle id must be an integer"))
		return
	}
	puzzle, ok := s.deps.Puzzles.ByID(id)
	if !ok {
		notFound := quizgate.ErrInvalidInput("puzzle not found").WithDetails(map[string]any{"id": id})
		notFound.Status = http.StatusNotFound
		s.writeError(w, r, notFound)
		return
	}
	s.writeJSON(w, r, http.StatusOK, puzzle)
}

func (s *Server) handlePuzzleReload(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"count": s.deps.Puzzles.Reload()})
}
