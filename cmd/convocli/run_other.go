//go:build !unix

package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/convocli/convocli/internal/errors"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an interactive command block session",
		Long: `Start your shell inside a pseudo-terminal and turn every command
you run into a structured block. Not supported on this platform.`,
		Example: `  convocli run`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return &clierrors.CLIError{
				Message: "Interactive sessions require a Unix terminal",
				Hint:    "convocli run is supported on Linux and macOS",
				Code:    clierrors.ExitSession,
			}
		},
	}
}
