package lexicon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTooVague(t *testing.T) {
	lex := Default()
	vague := []string{"shows", "  Movies ", "TV", "everything", "hello", "tell me"}
	for _, utterance := range vague {
		if !lex.TooVague(utterance) {
			t.Fatalf("TooVague(%q) = false, want true", utterance)
		}
	}
	specific := []string{
		"action movies from 2020",
		"Indian TV shows",
		"count them",
		"top dramas",
		"movies 2021",
		"list all titles released after the year two thousand",
	}
	for _, utterance := range specific {
		if lex.TooVague(utterance) {
			t.Fatalf("TooVague(%q) = true, want false", utterance)
		}
	}
}

func TestContextDependent(t *testing.T) {
	lex := Default()
	if !lex.ContextDependent("Only from 2010") {
		t.Fatal("ContextDependent(only from 2010) = false")
	}
	if !lex.ContextDependent("count them") {
		t.Fatal("ContextDependent(count them) = false")
	}
	if lex.ContextDependent("action movies from India") {
		t.Fatal("ContextDependent(action movies from India) = true")
	}
}

func TestLoadOverlaysNonEmptyLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	body := []byte(`
generic_terms: [" Films ", "series"]
min_tokens: 2
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	lex, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(lex.GenericTerms) != 2 || lex.GenericTerms[0] != "films" {
		t.Fatalf("GenericTerms = %#v", lex.GenericTerms)
	}
	if lex.MinTokens != 2 {
		t.Fatalf("MinTokens = %d", lex.MinTokens)
	}
	if len(lex.SpecificityCues) != len(Default().SpecificityCues) {
		t.Fatalf("SpecificityCues should keep defaults, got %d", len(lex.SpecificityCues))
	}
	if !lex.TooVague("films") {
		t.Fatal("TooVague(films) = false with overridden generic terms")
	}
	if lex.TooVague("shows tonight") {
		t.Fatal("TooVague(shows tonight) = true with min_tokens 2")
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	lex, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lex.MinTokens != 3 {
		t.Fatalf("MinTokens = %d", lex.MinTokens)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("generic_terms: [unterminated"), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected parse error")
	}
}
