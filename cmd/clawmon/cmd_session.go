package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/clawmon/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionResetCmd)
	sessionListCmd.Flags().String("status", "", "only list sessions with this status")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Query the sessions of a running daemon",
}

// apiClient talks to the query API of a running daemon.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(listen string) *apiClient {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return &apiClient{
		base: "http://" + host,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func daemonClient() *apiClient {
	cfg := loadConfig()
	return newAPIClient(cfg.HTTP.Listen)
}

func (c *apiClient) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type sessionDetail struct {
	types.Session
	Actions []struct {
		types.Action
		Tokens int `json:"tokens"`
	} `json:"actions"`
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		path := "/api/sessions"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var sessions []types.Session
		if err := daemonClient().do(http.MethodGet, path, &sessions); err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSTATUS\tAGENT\tPLATFORM\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Key,
				s.Status,
				orDash(s.AgentID),
				orDash(s.Platform),
				s.LastActivityAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show one session and its actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var detail sessionDetail
		if err := daemonClient().do(http.MethodGet, "/api/sessions/"+url.PathEscape(args[0]), &detail); err != nil {
			return err
		}

		fmt.Printf("Session:  %s\nStatus:   %s\nActivity: %s\n",
			detail.Key, detail.Status, detail.LastActivityAt.Format(time.RFC3339))
		if detail.Recipient != "" {
			fmt.Printf("Recipient: %s (group: %v)\n", detail.Recipient, detail.IsGroup)
		}
		fmt.Println()

		if len(detail.Actions) == 0 {
			fmt.Println("No actions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSEQ\tTOKENS\tCONTENT")
		for _, a := range detail.Actions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", a.ID, a.Type, a.Seq, a.Tokens, oneLine(a.Content))
		}
		return w.Flush()
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear both tables of the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemonClient().do(http.MethodPost, "/api/reset", nil); err != nil {
			return err
		}
		fmt.Println("Tables cleared.")
		return nil
	},
}
