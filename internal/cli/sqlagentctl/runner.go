// Package sqlagentctl is the command line client for the agent API.
package sqlagentctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failed(err error) error { return &exitError{code: 1, err: err} }

// Run executes one command line and returns the process exit code: 0 on
// success, 1 when the request or the turn failed, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		pterm.Error.WithWriter(stderr).Println(exit.err.Error())
		return exit.code
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

type settings struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	output  string
}

func newRootCommand(defaults Options) *cobra.Command {
	s := &settings{}
	root := &cobra.Command{
		Use:           "sqlagentctl",
		Short:         "Ask questions about the Netflix catalog through the SQL agent API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			return errors.New("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&s.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "agent API base URL")
	root.PersistentFlags().StringVar(&s.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&s.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	root.PersistentFlags().StringVarP(&s.output, "output", "o", "table", "output format: table or json")

	newClient := func() *client {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: s.timeout}
		}
		return &client{baseURL: s.baseURL, apiKey: s.apiKey, http: httpClient}
	}

	root.AddCommand(
		rawCommand("health", "Check API liveness", http.MethodGet, "/v1/health", newClient),
		rawCommand("ready", "Check API dependencies", http.MethodGet, "/v1/ready", newClient),
		sessionCommand(newClient),
		askCommand(s, newClient),
		retryCommand(s, newClient),
		resetCommand(newClient),
		historyCommand(newClient),
		exportCommand(newClient),
		validateCommand(s, newClient),
		queryCommand(s, newClient),
		chatCommand(s, newClient),
	)
	return root
}

func rawCommand(use, short, method, path string, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := newClient().do(cmd.Context(), method, path, nil)
			if err != nil {
				return failed(err)
			}
			printJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	}
}

func sessionCommand(newClient func() *client) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Manage conversation sessions"}
	session.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Open a session and print its id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var status sessionStatus
				if _, err := newClient().decode(cmd.Context(), http.MethodPost, "/v1/sessions", nil, &status); err != nil {
					return failed(err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), status.SessionID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Show session status",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := newClient().do(cmd.Context(), http.MethodGet, sessionPath(args[0], ""), nil)
				if err != nil {
					return failed(err)
				}
				printJSON(cmd.OutOrStdout(), raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "close <session-id>",
			Short: "Forget a session and its memory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := newClient().do(cmd.Context(), http.MethodDelete, sessionPath(args[0], ""), nil); err != nil {
					return failed(err)
				}
				pterm.Success.WithWriter(cmd.OutOrStdout()).Println("session closed")
				return nil
			},
		},
	)
	return session
}

func askCommand(s *settings, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <session-id> <question...>",
		Short: "Ask a question in a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"utterance": strings.Join(args[1:], " ")}
			return runTurn(cmd, s, newClient(), sessionPath(args[0], "/turns"), payload)
		},
	}
}

func retryCommand(s *settings, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <session-id>",
		Short: "Re-run the last failed question with its database error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, s, newClient(), sessionPath(args[0], "/retry"), nil)
		},
	}
}

func resetCommand(newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Clear a session's conversation memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient().do(cmd.Context(), http.MethodPost, sessionPath(args[0], "/reset"), nil); err != nil {
				return failed(err)
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Println("conversation memory cleared")
			return nil
		},
	}
}

func historyCommand(newClient func() *client) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show remembered questions and their SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args[0], "/history")
			if n > 0 {
				path += "?n=" + strconv.Itoa(n)
			}
			raw, err := newClient().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return failed(err)
			}
			printJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 0, "number of entries (server default when 0)")
	return cmd
}

func exportCommand(newClient func() *client) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Save the transcript or the last result to the object store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newClient().do(cmd.Context(), http.MethodPost, sessionPath(args[0], "/export"), map[string]string{"kind": kind})
			if err != nil {
				return failed(err)
			}
			printJSON(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "transcript", "what to export: transcript or result")
	return cmd
}

func validateCommand(s *settings, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql...>",
		Short: "Check a statement against the SQL guard without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var verdict struct {
				Accepted bool   `json:"accepted"`
				Reason   string `json:"reason"`
			}
			raw, err := newClient().decode(cmd.Context(), http.MethodPost, "/v1/query/validate", map[string]string{"sql": strings.Join(args, " ")}, &verdict)
			if err != nil {
				return failed(err)
			}
			if s.output == "json" {
				printJSON(cmd.OutOrStdout(), raw)
			} else if verdict.Accepted {
				pterm.Success.WithWriter(cmd.OutOrStdout()).Println("statement accepted")
			}
			if !verdict.Accepted {
				return failed(errors.New(verdict.Reason))
			}
			return nil
		},
	}
}

func queryCommand(s *settings, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql...>",
		Short: "Run a hand-written SELECT through the guarded executor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result turn
			raw, err := newClient().decode(cmd.Context(), http.MethodPost, "/v1/query", map[string]string{"sql": strings.Join(args, " ")}, &result)
			if err != nil {
				return failed(err)
			}
			if s.output == "json" {
				printJSON(cmd.OutOrStdout(), raw)
				return nil
			}
			return renderTable(cmd.OutOrStdout(), result.Columns, result.Rows)
		},
	}
}

func runTurn(cmd *cobra.Command, s *settings, c *client, path string, payload any) error {
	var result turn
	raw, err := c.decode(cmd.Context(), http.MethodPost, path, payload, &result)
	if err != nil {
		return failed(err)
	}
	if s.output == "json" {
		printJSON(cmd.OutOrStdout(), raw)
	} else if err := renderTurn(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if result.Error != "" {
		return failed(turnFailure(result))
	}
	return nil
}

func turnFailure(result turn) error {
	if result.RetryAvailable {
		return fmt.Errorf("%s (retry available)", result.Error)
	}
	return errors.New(result.Error)
}

func renderTurn(w io.Writer, result turn) error {
	if result.SQL != "" {
		pterm.Info.WithWriter(w).Println(result.SQL)
	}
	if result.Error != "" {
		return nil
	}
	if len(result.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "No results found.")
		return nil
	}
	return renderTable(w, result.Columns, result.Rows)
}

func renderTable(w io.Writer, columns []string, rows [][]any) error {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			if value != nil {
				cells[i] = fmt.Sprint(value)
			}
		}
		data = append(data, cells)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, table)
	_, _ = fmt.Fprintf(w, "%d row(s)\n", len(rows))
	return nil
}

func printJSON(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func sessionPath(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(strings.TrimSpace(id)) + suffix
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
