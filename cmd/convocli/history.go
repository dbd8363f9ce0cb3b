package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convocli/convocli/internal/block"
	"github.com/convocli/convocli/internal/config"
	clierrors "github.com/convocli/convocli/internal/errors"
	"github.com/convocli/convocli/internal/output"
	"github.com/convocli/convocli/internal/render"
	"github.com/convocli/convocli/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect command blocks from past sessions",
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Long: `List every session recorded under the history directory, newest
first, with its shell and open/closed state.`,
		Example: `  convocli history list
  convocli history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			dir := config.Load().HistoryDir()

			sessions, err := store.ListSessions(dir)
			if err != nil {
				return clierrors.HistoryFailed("list", err)
			}

			if out.JSON {
				return out.PrintJSON(sessions)
			}

			if len(sessions) == 0 {
				out.Muted("No stored sessions found.")
				return nil
			}

			for _, s := range sessions {
				closed := "open"
				if s.ClosedAt != nil {
					closed = s.ClosedAt.Format(time.RFC3339)
				}

				out.Print("%s  shell=%s  started=%s  closed=%s\n",
					s.SessionID, s.Shell, s.StartedAt.Format(time.RFC3339), closed)
			}

			return nil
		},
	}
}

func newHistoryViewCmd() *cobra.Command {
	var (
		limit    int
		expanded bool
	)

	cmd := &cobra.Command{
		Use:   "view <session-id>",
		Short: "View a session's command blocks",
		Long: `Render the command blocks recorded for one session: command, status,
working directory, timing, and (for expanded blocks) output.`,
		Example: `  convocli history view 4f6b2c1e-...
  convocli history view 4f6b2c1e-... --expanded --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			blocks, err := store.ReadBlocks(cfg.HistoryDir(), sessionID)
			if err != nil {
				return clierrors.HistoryFailed("read", err)
			}

			if blocks == nil {
				return clierrors.SessionNotFound(sessionID)
			}

			// Blocks recorded mid-execution belong to a process that no
			// longer exists; show them as canceled.
			for _, b := range blocks {
				if b.Status == block.StatusExecuting || b.Status == block.StatusPending {
					b.Status = block.StatusCanceled
					code := block.CanceledExitCode
					b.ExitCode = &code
				}
			}

			show := limit
			if show <= 0 {
				show = cfg.HistoryLimit()
			}

			if len(blocks) > show {
				blocks = blocks[len(blocks)-show:]
			}

			if out.JSON {
				return out.PrintJSON(blocks)
			}

			if len(blocks) == 0 {
				out.Muted("No blocks recorded for this session.")
				return nil
			}

			width := out.Terminal().Width

			for _, b := range blocks {
				if expanded {
					b.IsExpanded = true
				}

				out.Print("%s", render.Summary(b, width))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many blocks (default from config)")
	cmd.Flags().BoolVar(&expanded, "expanded", false, "Show output for every block, ignoring stored expansion state")

	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete one stored session",
		Long: `Remove one session's recorded blocks and metadata from the history
directory. This cannot be undone.`,
		Example: `  convocli history delete 4f6b2c1e-...`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			sessionID := args[0]

			if err := store.DeleteSession(config.Load().HistoryDir(), sessionID); err != nil {
				return clierrors.HistoryFailed("delete", err)
			}

			out.Success("Deleted session %s", sessionID)

			return nil
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than a duration",
		Long: `Delete stored sessions whose close time (or start time, for sessions
that never closed cleanly) is older than the retention window.`,
		Example: `  convocli history prune
  convocli history prune --older-than 168h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			window := store.DefaultRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil {
					return fmt.Errorf("invalid duration for --older-than: %w", err)
				}

				window = d
			}

			removed, err := store.PruneOlderThan(cfg.HistoryDir(), time.Now().Add(-window))
			if err != nil {
				return clierrors.HistoryFailed("prune", err)
			}

			out.Success("Removed %d session(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 168h)")

	return cmd
}
