// Package guard decides whether a candidate SQL statement may be sent to the
// warehouse. The checks are lexical: they look at the text, not at a parse
// tree, so they can reject harmless statements (a column alias named "update",
// the REPLACE() string function) and are not a substitute for a read-only
// database credential.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

type Kind string

const (
	KindEmpty              Kind = "empty"
	KindNotSelect          Kind = "not_select"
	KindMultipleStatements Kind = "multiple_statements"
	KindCommentInjection   Kind = "comment_injection"
	KindForbiddenKeyword   Kind = "forbidden_keyword"
)

// ForbiddenKeywords are rejected as whole words, case-insensitively, anywhere
// in the statement.
var ForbiddenKeywords = []string{
	"drop", "delete", "update", "insert", "alter",
	"truncate", "create", "replace", "grant", "revoke",
}

var forbiddenPatterns = compileKeywordPatterns(ForbiddenKeywords)

// Violation is returned when a candidate fails one of the checks. Keyword is
// set only for KindForbiddenKeyword.
type Violation struct {
	Kind    Kind
	Keyword string
}

func (v *Violation) Error() string {
	switch v.Kind {
	case KindEmpty:
		return "invalid SQL query provided"
	case KindNotSelect:
		return "only SELECT queries are allowed"
	case KindMultipleStatements:
		return "multiple SQL statements are not allowed"
	case KindCommentInjection:
		return "SQL comments are not allowed"
	case KindForbiddenKeyword:
		return fmt.Sprintf("dangerous keyword not allowed: %s", v.Keyword)
	default:
		return fmt.Sprintf("sql rejected: %s", v.Kind)
	}
}

// Validated is a statement that passed every check. It always carries the
// caller's original text, untrimmed and with its original casing.
type Validated struct {
	sql string
}

func (v Validated) String() string { return v.sql }

// Validate runs the checks in a fixed order and reports the first failure.
func Validate(candidate string) (Validated, error) {
	if candidate == "" {
		return Validated{}, &Violation{Kind: KindEmpty}
	}

	clean := strings.ToLower(strings.TrimSpace(candidate))
	if !strings.HasPrefix(clean, "select") {
		return Validated{}, &Violation{Kind: KindNotSelect}
	}
	if strings.Contains(clean, ";") {
		return Validated{}, &Violation{Kind: KindMultipleStatements}
	}
	if strings.Contains(clean, "--") || strings.Contains(clean, "/*") {
		return Validated{}, &Violation{Kind: KindCommentInjection}
	}
	for _, p := range forbiddenPatterns {
		if p.re.MatchString(clean) {
			return Validated{}, &Violation{Kind: KindForbiddenKeyword, Keyword: p.keyword}
		}
	}
	return Validated{sql: candidate}, nil
}

// Verdict is the serializable form of a Validate call.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Kind     Kind   `json:"kind,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func Check(candidate string) Verdict {
	_, err := Validate(candidate)
	if err == nil {
		return Verdict{Accepted: true}
	}
	violation := err.(*Violation)
	return Verdict{Kind: violation.Kind, Keyword: violation.Keyword, Reason: violation.Error()}
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

func compileKeywordPatterns(keywords []string) []keywordPattern {
	out := make([]keywordPattern, 0, len(keywords))
	for _, keyword := range keywords {
		out = append(out, keywordPattern{
			keyword: keyword,
			re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`),
		})
	}
	return out
}
