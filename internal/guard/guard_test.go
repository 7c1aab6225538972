package guard

import (
	"errors"
	"testing"
)

func TestValidateAcceptsSelectAndReturnsOriginalText(t *testing.T) {
	candidate := "  SELECT title FROM NETFLIX_MOVIES WHERE release_year = 2020\n"
	got, err := Validate(candidate)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.String() != candidate {
		t.Fatalf("Validate() = %q, want untrimmed original %q", got.String(), candidate)
	}
}

func TestValidateRejectionKinds(t *testing.T) {
	cases := []struct {
		sql     string
		kind    Kind
		keyword string
	}{
		{sql: "", kind: KindEmpty},
		{sql: "UPDATE NETFLIX_MOVIES SET title = 'x'", kind: KindNotSelect},
		{sql: "with t as (select 1) select * from t", kind: KindNotSelect},
		{sql: "SELECT 1; DROP TABLE NETFLIX_MOVIES", kind: KindMultipleStatements},
		{sql: "SELECT title FROM NETFLIX_MOVIES;", kind: KindMultipleStatements},
		{sql: "SELECT title FROM NETFLIX_MOVIES -- trailing", kind: KindCommentInjection},
		{sql: "SELECT /* hint */ title FROM NETFLIX_MOVIES", kind: KindCommentInjection},
		{sql: "SELECT * FROM NETFLIX_MOVIES WHERE 1=1 OR DELETE", kind: KindForbiddenKeyword, keyword: "delete"},
		{sql: "select replace(title, 'a', 'b') from NETFLIX_MOVIES", kind: KindForbiddenKeyword, keyword: "replace"},
		{sql: "SELECT Grant FROM NETFLIX_MOVIES", kind: KindForbiddenKeyword, keyword: "grant"},
	}
	for _, tc := range cases {
		_, err := Validate(tc.sql)
		var violation *Violation
		if !errors.As(err, &violation) {
			t.Fatalf("Validate(%q) error = %v, want *Violation", tc.sql, err)
		}
		if violation.Kind != tc.kind {
			t.Fatalf("Validate(%q) kind = %q, want %q", tc.sql, violation.Kind, tc.kind)
		}
		if violation.Keyword != tc.keyword {
			t.Fatalf("Validate(%q) keyword = %q, want %q", tc.sql, violation.Keyword, tc.keyword)
		}
	}
}

func TestValidateChecksRunInOrder(t *testing.T) {
	// Both a semicolon and a comment are present; the statement check wins.
	_, err := Validate("SELECT 1; -- comment")
	var violation *Violation
	if !errors.As(err, &violation) || violation.Kind != KindMultipleStatements {
		t.Fatalf("Validate() error = %v, want multiple_statements", err)
	}
}

func TestValidateMatchesKeywordsAsWholeWords(t *testing.T) {
	for _, sql := range []string{
		"SELECT date_added FROM NETFLIX_MOVIES",
		"SELECT title FROM NETFLIX_MOVIES WHERE description LIKE '%updated%'",
		"SELECT created_at_label, dropped FROM NETFLIX_MOVIES",
	} {
		if _, err := Validate(sql); err != nil {
			t.Fatalf("Validate(%q) error = %v", sql, err)
		}
	}
}

func TestCheckProjectsVerdict(t *testing.T) {
	if v := Check("SELECT 1"); !v.Accepted || v.Reason != "" {
		t.Fatalf("Check(select) = %#v", v)
	}
	v := Check("select * from NETFLIX_MOVIES where truncate")
	if v.Accepted || v.Kind != KindForbiddenKeyword || v.Keyword != "truncate" {
		t.Fatalf("Check(truncate) = %#v", v)
	}
	if v.Reason != "dangerous keyword not allowed: truncate" {
		t.Fatalf("Check(truncate).Reason = %q", v.Reason)
	}
}
