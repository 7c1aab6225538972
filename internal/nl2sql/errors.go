package nl2sql

import "errors"

type Kind string

const (
	KindTooVague     Kind = "too_vague"
	KindNoResults    Kind = "no_results"
	KindModelFailure Kind = "model_failure"
)

const noResultsMessage = "No results found."

const tooVagueMessage = `Please provide more specific filters.

Try asking with details like:
• Time period: "movies from 2020"
• Country: "shows from India"
• Genre: "action movies"
• Type: "TV shows only"
• Director/Actor: "movies by Christopher Nolan"
• Count: "how many movies"
• Top: "top 5 rated movies"
• Context: "only from 2010", "same country", "count them"

What specific Netflix content are you looking for?`

// GenerationError is every failure Generate reports. TooVague carries user
// guidance rather than a system fault.
type GenerationError struct {
	Kind Kind
	Err  error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindTooVague:
		return tooVagueMessage
	case KindNoResults:
		return noResultsMessage
	default:
		if e.Err == nil {
			return "language model request failed"
		}
		return "language model request failed: " + e.Err.Error()
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }

// KindOf returns the generation kind of err, or "" when err is not a
// GenerationError.
func KindOf(err error) Kind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}
