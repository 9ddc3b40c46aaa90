package ollama

import (
	"strconv"
	"strings"
)

func buildClassificationPrompt(text string, labels []string) string {
	const maxSnippet = 2000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	quoted := make([]string, 0, len(labels))
	for _, label := range labels {
		quoted = append(quoted, strconv.Quote(label))
	}

	return `You are a zero-shot text classifier for a car manual assistant.
Score how well the user text matches each candidate label.
Return strict JSON: {"scores": {"<label>": <number from 0 to 1>, ...}} with one key per label.
Scores should sum to 1. No markdown, no extra keys.

Candidate labels: [` + strings.Join(quoted, ", ") + `]

Text:
` + snippet
}
