package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nevindra/quizgate"
)

// errorBody is the wire envelope for every failed request.
type errorBody struct {
	ErrorCode string         `json:"error_code"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response_encode_failed", "err", err, "request_id", RequestIDFrom(r.Context()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := quizgate.FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request_failed", "code", apiErr.Code, "err", err,
			"request_id", RequestIDFrom(r.Context()))
	}
	s.writeJSON(w, r, apiErr.Status, errorBody{
		ErrorCode: string(apiErr.Code),
		ErrorType: apiErr.Type,
		Message:   apiErr.Message,
		RequestID: RequestIDFrom(r.Context()),
		Details:   apiErr.Details,
	})
}

// maxBodyBytes caps request bodies; schemas and histories stay well under.
const maxBodyBytes = 1 << 20

// decode unmarshals and validates a request body. Validation failures carry
// per-field details.
func (s *Server) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return quizgate.ErrInvalidInput("failed to read request body").WithCause(err)
	}
	if len(body) == 0 {
		return quizgate.ErrInvalidInput("request body required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return quizgate.ErrInvalidInput("malformed JSON body").WithCause(err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]any, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fmt.Sprintf("failed '%s' validation", fe.Tag())
			}
			return quizgate.ErrValidation("request validation failed", details)
		}
		return quizgate.ErrInvalidInput(err.Error()).WithCause(err)
	}
	return nil
}
