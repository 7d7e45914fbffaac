package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/clawmon/internal/digest"
	"github.com/user/clawmon/internal/gateway"
	"github.com/user/clawmon/internal/monitor"
	"github.com/user/clawmon/internal/state"
	"github.com/user/clawmon/internal/types"
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("strict", true, "stop at the first malformed line")
	replayCmd.Flags().Bool("actions", false, "list every action, not just sessions")
	replayCmd.Flags().String("run", "", "only list actions of this run")
}

var replayCmd = &cobra.Command{
	Use:   "replay <capture.jsonl>",
	Short: "Rebuild the tables from a capture and print them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		strict, _ := cmd.Flags().GetBool("strict")
		if !cmd.Flags().Changed("strict") {
			strict = cfg.Feed.Strict
		}
		showActions, _ := cmd.Flags().GetBool("actions")
		run, _ := cmd.Flags().GetString("run")

		store := state.NewStore(nil)
		disp := gateway.New(monitor.New(store), cfg.Feed.QueueSize)
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		disp.Start(ctx)
		defer disp.Stop()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		defer f.Close()

		stats, err := disp.Replay(ctx, f, strict)
		if err != nil {
			return err
		}

		dg, err := digest.New(cfg.Digest.Model, cfg.Digest.MaxTokens)
		if err != nil {
			slog.Warn("token counts disabled", "error", err)
			dg = nil
		}

		fmt.Fprintf(os.Stdout, "Replayed %d frames from %d lines (%d skipped).\n\n", stats.Frames, stats.Lines, stats.Skipped)
		if err := printSessions(os.Stdout, store); err != nil {
			return err
		}
		if showActions || run != "" {
			fmt.Fprintln(os.Stdout)
			return printActions(os.Stdout, store, types.RunID(run), dg)
		}
		return nil
	},
}

func printSessions(out io.Writer, store *state.Store) error {
	sessions := store.Sessions.Values()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})

	runs := make(map[types.SessionKey]int)
	for _, a := range store.Actions.Values() {
		if types.IsStreamID(a.ID) {
			runs[a.SessionKey]++
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tPLATFORM\tRUNS\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.Key,
			s.Status,
			orDash(s.Platform),
			runs[s.Key],
			s.LastActivityAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func printActions(out io.Writer, store *state.Store, run types.RunID, dg *digest.Digester) error {
	var actions []types.Action
	if run != "" {
		actions = store.Actions.ByRun(run)
	} else {
		actions = store.Actions.Values()
	}
	if len(actions) == 0 {
		fmt.Fprintln(out, "No actions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRUN\tTYPE\tSEQ\tTOKENS\tEXCERPT")
	for _, a := range actions {
		tokens := "-"
		excerpt := digest.Text(a)
		if dg != nil {
			tokens = fmt.Sprint(dg.ActionTokens(a))
			excerpt = dg.Truncate(excerpt, 12)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID,
			orDash(string(a.RunID)),
			a.Type,
			a.Seq,
			tokens,
			oneLine(excerpt),
		)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// oneLine keeps excerpts on a single table row.
func oneLine(s string) string {
	const limit = 60
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}
