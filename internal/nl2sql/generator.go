// Package nl2sql turns a natural-language question into one candidate SELECT
// statement using a language model and the session's recent history.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlagent/sqlagent/internal/lexicon"
	"github.com/sqlagent/sqlagent/internal/llm"
	"github.com/sqlagent/sqlagent/internal/memory"
	"github.com/sqlagent/sqlagent/internal/observability"
)

type Options struct {
	Model    llm.Model
	Memory   memory.Memory
	Lexicon  lexicon.Lexicon
	Preamble string
	// Window is how many recent entries the prompt includes.
	Window int
	Logger *slog.Logger
}

// Generator belongs to one session; its Memory is never shared.
type Generator struct {
	model    llm.Model
	memory   memory.Memory
	lexicon  lexicon.Lexicon
	preamble string
	window   int
	logger   *slog.Logger
	now      func() time.Time
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("language model is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("conversation memory is required")
	}
	preamble := strings.TrimSpace(opts.Preamble)
	if preamble == "" {
		preamble = DefaultPreamble()
	}
	window := opts.Window
	if window <= 0 {
		window = memory.DefaultWindow
	}
	lex := opts.Lexicon
	if len(lex.GenericTerms) == 0 && len(lex.SpecificityCues) == 0 && len(lex.ContextCues) == 0 {
		lex = lexicon.Default()
	}
	return &Generator{
		model:    opts.Model,
		memory:   opts.Memory,
		lexicon:  lex,
		preamble: preamble,
		window:   window,
		logger:   observability.OrDiscard(opts.Logger),
		now:      time.Now,
	}, nil
}

func (g *Generator) Memory() memory.Memory { return g.memory }

// Generate returns a candidate statement for utterance. A non-empty
// previousError asks the model to correct its last attempt. The entry is
// recorded in memory only when a candidate is produced.
func (g *Generator) Generate(ctx context.Context, utterance, previousError string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if g.lexicon.TooVague(utterance) {
		return "", g.fail(ctx, &GenerationError{Kind: KindTooVague})
	}

	history, err := g.memory.Recent(ctx, g.window)
	if err != nil {
		return "", g.fail(ctx, &GenerationError{Kind: KindModelFailure, Err: fmt.Errorf("load conversation history: %w", err)})
	}
	prompt := BuildPrompt(PromptInput{
		Preamble:      g.preamble,
		History:       history,
		Utterance:     utterance,
		Hint:          len(history) > 0 && g.lexicon.ContextDependent(utterance),
		PreviousError: strings.TrimSpace(previousError),
	})
	g.logger.DebugContext(ctx, "generating sql",
		append(observability.LogAttrs(ctx),
			slog.String("utterance", utterance),
			slog.Int("history", len(history)),
			slog.Bool("self_correction", previousError != ""))...)

	start := time.Now()
	completion, err := g.model.Complete(ctx, prompt)
	observability.ObserveLLMRequest(time.Since(start))
	if err != nil {
		return "", g.fail(ctx, &GenerationError{Kind: KindModelFailure, Err: err})
	}

	candidate, ok := cleanCandidate(completion)
	if !ok {
		g.logger.DebugContext(ctx, "model response is not a select statement",
			append(observability.LogAttrs(ctx), slog.String("response", completion))...)
		return "", g.fail(ctx, &GenerationError{Kind: KindNoResults})
	}

	entry := memory.Entry{Utterance: utterance, SQL: candidate, RecordedAt: g.now().UTC()}
	if err := g.memory.Record(ctx, entry); err != nil {
		g.logger.ErrorContext(ctx, "failed to record conversation entry",
			append(observability.LogAttrs(ctx), slog.String("error", err.Error()))...)
	}
	g.logger.DebugContext(ctx, "generated sql", append(observability.LogAttrs(ctx), slog.String("sql", candidate))...)
	return candidate, nil
}

func (g *Generator) fail(ctx context.Context, err *GenerationError) error {
	observability.IncrementGenerationFailure(string(err.Kind))
	level := slog.LevelError
	if err.Kind == KindTooVague {
		level = slog.LevelInfo
	}
	attrs := append(observability.LogAttrs(ctx), slog.String("kind", string(err.Kind)))
	if err.Err != nil {
		attrs = append(attrs, slog.String("error", err.Err.Error()))
	}
	g.logger.Log(ctx, level, "sql generation failed", attrs...)
	return err
}

// IsTimeout reports whether a model failure was caused by a deadline.
func IsTimeout(err error) bool {
	return KindOf(err) == KindModelFailure && errors.Is(err, context.DeadlineExceeded)
}
