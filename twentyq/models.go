// Package twentyq orchestrates the twenty-questions endpoints: guard check,
// session history, prompt composition, LLM call and verdict parsing.
package twentyq

import "strings"

// AnswerScale is the 4-step verdict for a yes/no question.
type AnswerScale string

const (
	ScaleYes         AnswerScale = "예"
	ScaleProbablyYes AnswerScale = "아마도 예"
	ScaleProbablyNo  AnswerScale = "아마도 아니오"
	ScaleNo          AnswerScale = "아니오"
)

// answerScales is the scan order. "예" is a substring of "아마도 예", so the
// broad members win when the model replies with a single scale word, which
// is what the prompt demands.
var answerScales = []AnswerScale{ScaleYes, ScaleProbablyYes, ScaleProbablyNo, ScaleNo}

// ParseAnswerScale scans text for the first scale literal.
func ParseAnswerScale(text string) (AnswerScale, bool) {
	text = strings.TrimSpace(text)
	for _, scale := range answerScales {
		if strings.Contains(text, string(scale)) {
			return scale, true
		}
	}
	return "", false
}

// VerifyResult grades a player's guess against the secret.
type VerifyResult string

const (
	VerifyAccept VerifyResult = "정답"
	VerifyClose  VerifyResult = "근접"
	VerifyReject VerifyResult = "오답"
)

var verifyResults = []VerifyResult{VerifyAccept, VerifyClose, VerifyReject}

// ParseVerifyResult scans text for the first verdict literal.
func ParseVerifyResult(text string) (VerifyResult, bool) {
	for _, result := range verifyResults {
		if strings.Contains(text, string(result)) {
			return result, true
		}
	}
	return "", false
}

// SynonymResult reports semantic equivalence of two words.
type SynonymResult string

const (
	SynonymEquivalent    SynonymResult = "동일"
	SynonymNotEquivalent SynonymResult = "상이"
)

var synonymResults = []SynonymResult{SynonymEquivalent, SynonymNotEquivalent}

// ParseSynonymResult scans text for the first equivalence literal.
func ParseSynonymResult(text string) (SynonymResult, bool) {
	for _, result := range synonymResults {
		if strings.Contains(text, string(result)) {
			return result, true
		}
	}
	return "", false
}

// HintsResponse is the hint-generation result.
type HintsResponse struct {
	Hints []string `json:"hints"`
}

// AnswerResponse carries the parsed scale (empty when unparseable) plus the
// raw model text.
type AnswerResponse struct {
	Scale     string `json:"scale,omitempty"`
	RawText   string `json:"raw_text"`
	SessionID string `json:"session_id,omitempty"`
}

// VerifyResponse carries the parsed verdict (empty when unparseable).
type VerifyResponse struct {
	Result  string `json:"result,omitempty"`
	RawText string `json:"raw_text"`
}

// NormalizeResponse returns the cleaned-up question next to the original.
type NormalizeResponse struct {
	Normalized string `json:"normalized"`
	Original   string `json:"original"`
}

// SynonymResponse carries the parsed equivalence (empty when unparseable).
type SynonymResponse struct {
	Result  string `json:"result,omitempty"`
	RawText string `json:"raw_text"`
}
