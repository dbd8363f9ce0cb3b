//go:build unix

package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/convocli/convocli/internal/block"
	"github.com/convocli/convocli/internal/config"
	clierrors "github.com/convocli/convocli/internal/errors"
	"github.com/convocli/convocli/internal/observability"
	"github.com/convocli/convocli/internal/output"
	"github.com/convocli/convocli/internal/paths"
	"github.com/convocli/convocli/internal/profile"
	"github.com/convocli/convocli/internal/prompt"
	"github.com/convocli/convocli/internal/pty"
	"github.com/convocli/convocli/internal/render"
	"github.com/convocli/convocli/internal/session"
	"github.com/convocli/convocli/internal/store"
)

func newRunCmd() *cobra.Command {
	var (
		shellFlag   string
		dirFlag     string
		profileName string
		noPersist   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive command block session",
		Long: `Start your shell inside a pseudo-terminal and turn every command
you run into a structured block with output, exit status, and timing.

Type 'exit' to end the session. Press Ctrl-C to cancel the running
command (graceful first, forceful after the grace window).`,
		Example: `  convocli run
  convocli run --shell /bin/zsh
  convocli run --profile zsh-dev`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, shellFlag, dirFlag, profileName, noPersist)
		},
	}

	cmd.Flags().StringVar(&shellFlag, "shell", "", "Shell binary to run (overrides config and profile)")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "Starting working directory")
	cmd.Flags().StringVar(&profileName, "profile", "", "Shell profile to apply")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "Do not record this session's blocks to history")

	return cmd
}

func runSession(cmd *cobra.Command, shellFlag, dirFlag, profileName string, noPersist bool) error {
	ctx := cmd.Context()
	out := output.FromContext(ctx)
	logger := observability.FromContext(ctx)
	cfg := config.Load()

	shell := cfg.Shell()
	quietTimeout := cfg.QuietTimeout()

	extraPatterns, err := prompt.LoadPatternFile(cfg.PromptPatternFile())
	if err != nil {
		out.Warning("Ignoring prompt pattern file: %v", err)
	}

	if profileName != "" {
		profilesPath, pathErr := paths.ProfilesFile()
		if pathErr != nil {
			return clierrors.ConfigFailed("resolve profiles file", pathErr)
		}

		profiles, loadErr := profile.Load(profilesPath)
		if loadErr != nil {
			return clierrors.ConfigFailed("load profiles", loadErr)
		}

		p, ok := profiles.Get(profileName)
		if !ok {
			return clierrors.ProfileNotFound(profileName)
		}

		shell = p.Shell
		extraPatterns = append(extraPatterns, p.PromptPatterns...)

		if t := p.QuietTimeout(); t > 0 {
			quietTimeout = t
		}
	}

	if shellFlag != "" {
		shell = shellFlag
	}

	if _, err := exec.LookPath(shell); err != nil {
		return clierrors.ShellNotFound(shell, err)
	}

	workingDir := dirFlag
	if workingDir == "" {
		workingDir, err = os.Getwd()
		if err != nil {
			workingDir = "/"
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = workingDir
	}

	sessionID := uuid.NewString()

	// Persistence is best effort: a broken history dir degrades the
	// session, it never prevents one.
	var st *store.Store
	if !noPersist {
		st, err = store.New(store.Options{
			SessionID: sessionID,
			Dir:       cfg.HistoryDir(),
			Shell:     shell,
		})
		if err != nil {
			logger.Warn("history disabled for this session",
				slog.String("component", "cli"),
				slog.String("error", err.Error()))
			out.Warning("History disabled: %v", err)

			st = nil
		}
	}

	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Warn("failed to close history store",
					slog.String("component", "cli"),
					slog.String("error", closeErr.Error()))
			}
		}()
	}

	doneCh := make(chan *block.Block, 1)

	sess := session.New(session.Options{
		ID:                  sessionID,
		Shell:               shell,
		WorkingDir:          workingDir,
		Home:                home,
		Store:               st,
		Logger:              logger,
		FlushInterval:       cfg.FlushInterval(),
		QuietTimeout:        quietTimeout,
		CancelGrace:         cfg.CancelGrace(),
		ExtraPromptPatterns: extraPatterns,
		OnUpdate: func(b *block.Block) {
			if b.Status.IsTerminal() {
				select {
				case doneCh <- b:
				default:
				}
			}
		},
	})

	term := out.Terminal()

	shellProc, err := pty.Start(pty.Options{
		Shell:            shell,
		Dir:              workingDir,
		Rows:             term.Height,
		Cols:             term.Width,
		OnOutput:         sess.HandleOutput,
		Logger:           logger,
		ShutdownDeadline: cfg.CancelGrace(),
	})
	if err != nil {
		_ = sess.Close()
		return clierrors.SessionStartFailed(err)
	}

	sess.AttachTerminal(shellProc)

	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Warn("failed to close session",
				slog.String("component", "cli"),
				slog.String("error", closeErr.Error()))
		}
	}()

	logger.Info("session started",
		slog.String("component", "cli"),
		slog.String("event.type", "cli.session.start"),
		slog.String("session.shell", shell))

	out.Muted("convocli session %s (%s) — type 'exit' to leave", sessionID, shell)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		out.Print("%s > ", sess.WorkingDirectory())

		if !scanner.Scan() {
			break
		}

		command := strings.TrimSpace(scanner.Text())
		if command == "" {
			continue
		}

		if command == "exit" || command == "quit" {
			break
		}

		if _, err := sess.Submit(ctx, command); err != nil {
			var cliErr *clierrors.CLIError
			if clierrors.As(err, &cliErr) {
				out.Failure("%s", cliErr.Message)

				if cliErr.Hint != "" {
					out.Info("%s", cliErr.Hint)
				}
			} else {
				out.Failure("%s", err.Error())
			}

			continue
		}

		waitForBlock(ctx, out, sess, doneCh, sigCh, term.Width)
	}

	return scanner.Err()
}

// waitForBlock blocks until the submitted command reaches a terminal
// state, translating Ctrl-C into session cancellation along the way.
func waitForBlock(ctx context.Context, out *output.Writer, sess *session.Session, doneCh <-chan *block.Block, sigCh <-chan os.Signal, width int) {
	for {
		select {
		case b := <-doneCh:
			out.Print("%s", render.Summary(b, width))
			return
		case <-sigCh:
			go func() {
				if _, err := sess.Cancel(context.Background()); err != nil {
					var cliErr *clierrors.CLIError
					if clierrors.As(err, &cliErr) {
						out.Warning("%s", cliErr.Message)
					}
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}
