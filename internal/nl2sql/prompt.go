package nl2sql

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sqlagent/sqlagent/internal/memory"
)

//go:embed prompt/preamble.txt
var defaultPreamble string

const (
	noHistoryMarker = "Conversation History: None (starting fresh)"
	contextHint     = "Hint: This appears to be a context-dependent request. Consider intelligently modifying the previous SQL if applicable."
)

func DefaultPreamble() string {
	return strings.TrimSpace(defaultPreamble)
}

// LoadPreamble returns the schema preamble at path, or the built-in one when
// path is empty.
func LoadPreamble(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPreamble(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt preamble %q: %w", path, err)
	}
	preamble := strings.TrimSpace(string(raw))
	if preamble == "" {
		return "", fmt.Errorf("prompt preamble %q is empty", path)
	}
	return preamble, nil
}

type PromptInput struct {
	Preamble      string
	History       []memory.Entry
	Utterance     string
	Hint          bool
	PreviousError string
}

// BuildPrompt renders the single text prompt sent to the model. The error
// section, when present, is always last before the closing instruction.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(in.Preamble)
	b.WriteString("\n\n")
	b.WriteString(renderHistory(in.History))
	b.WriteString("\n\nUser question: ")
	b.WriteString(in.Utterance)
	if in.Hint {
		b.WriteString("\n\n")
		b.WriteString(contextHint)
	}
	if in.PreviousError != "" {
		b.WriteString("\n\nPrevious query error: ")
		b.WriteString(in.PreviousError)
		b.WriteString("\nGenerate corrected SQL query that fixes this error.")
	}
	b.WriteString("\n\nGenerate the SQL query now:")
	return b.String()
}

func renderHistory(history []memory.Entry) string {
	if len(history) == 0 {
		return noHistoryMarker
	}
	lines := make([]string, 0, 1+2*len(history))
	lines = append(lines, "Conversation History:")
	for i, entry := range history {
		lines = append(lines, strconv.Itoa(i+1)+". User: "+entry.Utterance)
		lines = append(lines, "   SQL: "+entry.SQL)
	}
	return strings.Join(lines, "\n")
}

// cleanCandidate turns a raw completion into a SELECT statement or reports
// why it cannot.
func cleanCandidate(completion string) (string, bool) {
	candidate := strings.TrimSpace(completion)
	lowered := strings.ToLower(candidate)
	for _, marker := range []string{"error", "no results", "not found"} {
		if strings.Contains(lowered, marker) {
			return "", false
		}
	}
	candidate = stripMarkdownSQL(candidate)
	if !strings.HasPrefix(strings.ToUpper(candidate), "SELECT") {
		return "", false
	}
	return candidate, true
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
