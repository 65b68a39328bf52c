package twentyq

import (
	"strings"

	"github.com/nevindra/quizgate"
)

// HistoryContext renders recent Q/A history as a prompt context block.
// Only messages carrying the Q:/A: prefixes participate; the last maxPairs
// pairs survive. Returns "" when maxPairs is zero or nothing matches.
func HistoryContext(history []quizgate.ChatMessage, header string, maxPairs int) string {
	var lines []string
	for _, msg := range history {
		if strings.HasPrefix(msg.Content, "Q:") || strings.HasPrefix(msg.Content, "A:") {
			lines = append(lines, msg.Content)
		}
	}

	maxLines := maxPairs * 2
	if maxLines <= 0 {
		return ""
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n" + header + "\n" + strings.Join(lines, "\n")
}
