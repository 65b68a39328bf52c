// Package turtlesoup orchestrates the lateral-thinking puzzle endpoints:
// question answering with history, hints, validation, reveals and puzzle
// generation.
package turtlesoup

import "strings"

// AnswerType is the verdict vocabulary for player questions.
type AnswerType string

const (
	AnswerYes          AnswerType = "예"
	AnswerNo           AnswerType = "아니오"
	AnswerIrrelevant   AnswerType = "관계없습니다"
	AnswerImportant    AnswerType = "중요한 질문입니다!"
	AnswerSomewhat     AnswerType = "조금은 관계있습니다"
	AnswerFalsePremise AnswerType = "전제가 틀렸습니다"
	AnswerCannotAnswer AnswerType = "답변할 수 없습니다"
)

// baseAnswers is the scan order; the importance marker is checked last so
// it never shadows a substantive verdict.
var baseAnswers = []AnswerType{
	AnswerYes,
	AnswerNo,
	AnswerIrrelevant,
	AnswerSomewhat,
	AnswerFalsePremise,
	AnswerCannotAnswer,
}

// ParseAnswerType scans text for the first verdict literal.
func ParseAnswerType(text string) (AnswerType, bool) {
	text = strings.TrimSpace(text)
	for _, answer := range baseAnswers {
		if strings.Contains(text, string(answer)) {
			return answer, true
		}
	}
	if strings.Contains(text, string(AnswerImportant)) {
		return AnswerImportant, true
	}
	return "", false
}

// IsImportantMarker reports whether the reply flags the question as
// important, tolerant of spacing variations.
func IsImportantMarker(text string) bool {
	compact := strings.ReplaceAll(text, " ", "")
	return strings.Contains(compact, "중요한질문입니다") || strings.Contains(compact, "중요합니다")
}

// FormatAnswerText renders the final answer string with the importance
// marker attached.
func FormatAnswerText(answer AnswerType, found, important bool, rawText string) string {
	if !found {
		return rawText
	}
	if !important {
		return string(answer)
	}
	if answer == AnswerNo {
		return string(AnswerNo) + " 하지만 " + string(AnswerImportant)
	}
	return string(answer) + ", " + string(AnswerImportant)
}

// ValidationResult grades a player's solution attempt.
type ValidationResult string

const (
	ValidationYes   ValidationResult = "YES"
	ValidationNo    ValidationResult = "NO"
	ValidationClose ValidationResult = "CLOSE"
)

var validationResults = []ValidationResult{ValidationYes, ValidationNo, ValidationClose}

// ParseValidationResult scans uppercased text for the first verdict.
func ParseValidationResult(text string) (ValidationResult, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	for _, result := range validationResults {
		if strings.Contains(text, string(result)) {
			return result, true
		}
	}
	return "", false
}

// QAItem is one question/answer pair for display.
type QAItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerResponse is the result of answering one player question.
type AnswerResponse struct {
	Answer        string   `json:"answer"`
	RawText       string   `json:"raw_text"`
	QuestionCount int      `json:"question_count"`
	History       []QAItem `json:"history"`
	SessionID     string   `json:"session_id,omitempty"`
}

// HintResponse is one generated hint at the requested level.
type HintResponse struct {
	Hint  string `json:"hint"`
	Level int    `json:"level"`
}

// ValidationResponse carries the verdict; Result falls back to the raw
// text when unparseable.
type ValidationResponse struct {
	Result  string `json:"result"`
	RawText string `json:"raw_text"`
}

// RevealResponse is the dramatic solution narrative.
type RevealResponse struct {
	Narrative string `json:"narrative"`
}

// PuzzleResponse is a generated or preset puzzle.
type PuzzleResponse struct {
	Title      string   `json:"title"`
	Scenario   string   `json:"scenario"`
	Solution   string   `json:"solution"`
	Category   string   `json:"category"`
	Difficulty int      `json:"difficulty"`
	Hints      []string `json:"hints"`
	PuzzleID   *int     `json:"puzzle_id,omitempty"`
}

// RewriteResponse carries the rewritten puzzle beside the original.
type RewriteResponse struct {
	Scenario         string `json:"scenario"`
	Solution         string `json:"solution"`
	OriginalScenario string `json:"original_scenario"`
	OriginalSolution string `json:"original_solution"`
}
