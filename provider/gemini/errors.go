package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nevindra/quizgate"
)

// statusError is a raw provider HTTP failure, kept internal so callers only
// ever see translated typed errors.
type statusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.Status, truncate(e.Body, 200))
}

// newStatusError extracts a retry delay from the Retry-After header or the
// google.rpc.RetryInfo detail in the error body.
func newStatusError(resp *http.Response, body string) *statusError {
	ra := parseRetryAfter(resp.Header.Get("Retry-After"))
	if ra == 0 {
		ra = parseRetryInfo(body)
	}
	return &statusError{Status: resp.StatusCode, Body: body, RetryAfter: ra}
}

// translate maps provider failures to the typed taxonomy. Provider-specific
// error shapes never leak upward.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var typed *quizgate.Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return quizgate.ErrLLMTimeout("LLM request timed out").WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return quizgate.ErrLLMTimeout("LLM request timed out").WithCause(err)
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests:
			return quizgate.ErrLLMRateLimit("LLM rate limit exceeded").WithCause(err)
		case se.Status == http.StatusGatewayTimeout || se.Status == http.StatusRequestTimeout:
			return quizgate.ErrLLMTimeout("LLM request timed out").WithCause(err)
		default:
			return quizgate.ErrLLMModel(fmt.Sprintf("LLM call failed with status %d", se.Status)).WithCause(err)
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "deadline") {
		return quizgate.ErrLLMTimeout("LLM request timed out").WithCause(err)
	}
	return quizgate.ErrLLMModel("LLM call failed").WithCause(err)
}

// isTransient reports whether err is worth retrying: rate limiting,
// server-side failures, or network timeouts. Context cancellation is final.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Status {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryAfterOf(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// parseRetryAfter handles the delay-seconds form of the Retry-After header.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// parseRetryInfo extracts retryDelay from a google.rpc.RetryInfo error detail.
func parseRetryInfo(body string) time.Duration {
	var envelope struct {
		Error struct {
			Details []json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(body), &envelope) != nil {
		return 0
	}
	for _, raw := range envelope.Error.Details {
		var detail struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		}
		if json.Unmarshal(raw, &detail) != nil {
			continue
		}
		if detail.Type == "type.googleapis.com/google.rpc.RetryInfo" && detail.RetryDelay != "" {
			if d, err := time.ParseDuration(detail.RetryDelay); err == nil {
				return d
			}
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
