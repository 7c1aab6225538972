package agent

import "github.com/sqlagent/sqlagent/internal/query"

const (
	StateGenerating = "generating_sql"
	StateExecuting  = "executing_sql"
	StateFormatting = "formatting_result"
	StateErrored    = "handled_error"
)

// State is one node of a turn. Each variant carries only what that node
// needs; the set is closed.
type State interface {
	Name() string
	sealed()
}

type Generating struct {
	Utterance     string
	PreviousError string
}

type Executing struct {
	Utterance string
	SQL       string
}

// Formatting is terminal and holds the result unchanged.
type Formatting struct {
	Utterance string
	SQL       string
	Result    query.Result
}

// Errored is terminal. PreviousError is non-empty only when execution of a
// generated statement failed, so the caller can feed it into the next turn.
type Errored struct {
	Utterance     string
	SQL           string
	Err           error
	PreviousError string
}

func (Generating) Name() string { return StateGenerating }
func (Executing) Name() string  { return StateExecuting }
func (Formatting) Name() string { return StateFormatting }
func (Errored) Name() string    { return StateErrored }

func (Generating) sealed() {}
func (Executing) sealed()  {}
func (Formatting) sealed() {}
func (Errored) sealed()    {}
