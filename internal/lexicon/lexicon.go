// Package lexicon holds the word lists that drive the vagueness gate and the
// context-dependence hint. Deployments can replace any list from a YAML file
// without rebuilding.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Lexicon struct {
	// GenericTerms reject an utterance that consists of exactly one of them.
	GenericTerms []string `yaml:"generic_terms"`
	// SpecificityCues let a short utterance through when any appears as a substring.
	SpecificityCues []string `yaml:"specificity_cues"`
	// ContextCues mark an utterance as a refinement of the previous question.
	ContextCues []string `yaml:"context_cues"`
	// MinTokens is the shortest utterance accepted without a specificity cue.
	MinTokens int `yaml:"min_tokens"`
}

func Default() Lexicon {
	return Lexicon{
		GenericTerms: []string{"show", "list", "get", "all", "everything", "movies", "shows", "tv"},
		SpecificityCues: []string{
			"where", "filter", "from", "by", "with", "in",
			"2020", "2021", "2022", "2023", "2024", "2025", "2026",
			"director", "actor", "genre", "rating", "india", "usa",
			"action", "drama", "comedy", "horror", "animated", "netflix",
			"count", "top", "best", "only", "same", "those", "them",
		},
		ContextCues: []string{
			"only from", "same", "those", "them", "count them",
			"top 5", "top 10", "best", "more", "less",
			"also", "additionally", "and then", "now", "then",
			"similar", "like the", "such as",
		},
		MinTokens: 3,
	}
}

// Load reads a YAML file and overlays every non-empty list on Default.
func Load(path string) (Lexicon, error) {
	lex := Default()
	if strings.TrimSpace(path) == "" {
		return lex, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon %q: %w", path, err)
	}
	var override Lexicon
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon %q: %w", path, err)
	}
	if len(override.GenericTerms) > 0 {
		lex.GenericTerms = normalize(override.GenericTerms)
	}
	if len(override.SpecificityCues) > 0 {
		lex.SpecificityCues = normalize(override.SpecificityCues)
	}
	if len(override.ContextCues) > 0 {
		lex.ContextCues = normalize(override.ContextCues)
	}
	if override.MinTokens < 0 {
		return Lexicon{}, fmt.Errorf("parse lexicon %q: min_tokens must be >= 0", path)
	}
	if override.MinTokens > 0 {
		lex.MinTokens = override.MinTokens
	}
	return lex, nil
}

// TooVague reports whether the utterance is a bare generic term, or is short
// and carries no specificity cue.
func (l Lexicon) TooVague(utterance string) bool {
	lowered := strings.ToLower(strings.TrimSpace(utterance))
	for _, term := range l.GenericTerms {
		if lowered == term {
			return true
		}
	}
	if len(strings.Fields(utterance)) >= l.MinTokens {
		return false
	}
	return !containsAny(lowered, l.SpecificityCues)
}

func (l Lexicon) ContextDependent(utterance string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(utterance)), l.ContextCues)
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func normalize(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
