package sqlagentctl

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const chatHelp = "commands: /retry, /reset, /history, /quit"

// chatCommand reads one question per line until EOF or /quit. Failed turns
// are printed and the loop continues; only transport errors end it.
func chatCommand(s *settings, newClient func() *client) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient()
			out := cmd.OutOrStdout()
			if sessionID == "" {
				var status sessionStatus
				if _, err := c.decode(cmd.Context(), http.MethodPost, "/v1/sessions", nil, &status); err != nil {
					return failed(err)
				}
				sessionID = status.SessionID
			}
			pterm.Info.WithWriter(out).Printfln("session %s (%s)", sessionID, chatHelp)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				_, _ = fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				var err error
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/help":
					_, _ = fmt.Fprintln(out, chatHelp)
				case "/reset":
					_, err = c.do(cmd.Context(), http.MethodPost, sessionPath(sessionID, "/reset"), nil)
					if err == nil {
						pterm.Success.WithWriter(out).Println("conversation memory cleared")
					}
				case "/history":
					var raw []byte
					raw, err = c.do(cmd.Context(), http.MethodGet, sessionPath(sessionID, "/history"), nil)
					if err == nil {
						printJSON(out, raw)
					}
				case "/retry":
					err = chatTurn(cmd, s, c, sessionPath(sessionID, "/retry"), nil)
				default:
					err = chatTurn(cmd, s, c, sessionPath(sessionID, "/turns"), map[string]string{"utterance": line})
				}
				if err != nil {
					return failed(err)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session instead of opening one")
	return cmd
}

// chatTurn prints in-band failures and API conflicts (nothing to retry)
// without ending the loop.
func chatTurn(cmd *cobra.Command, s *settings, c *client, path string, payload any) error {
	err := runTurn(cmd, s, c, path, payload)
	if err == nil {
		return nil
	}
	var exit *exitError
	if !errors.As(err, &exit) {
		return err
	}
	var apiErr *apiError
	if errors.As(exit.err, &apiErr) && apiErr.Status != http.StatusConflict {
		return exit.err
	}
	pterm.Warning.WithWriter(cmd.OutOrStdout()).Println(exit.err.Error())
	return nil
}
