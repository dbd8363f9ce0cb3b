package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/convocli/convocli/internal/errors"
	"github.com/convocli/convocli/internal/output"
	"github.com/convocli/convocli/internal/paths"
	"github.com/convocli/convocli/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage shell profiles",
		Long: `Shell profiles bundle a shell binary with the prompt patterns and
quiet timeout that fit it, so 'convocli run --profile <name>' can switch
shells without touching the global config.`,
	}

	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileSetCmd())
	cmd.AddCommand(newProfileDeleteCmd())

	return cmd
}

func loadProfiles() (*profile.File, string, error) {
	path, err := paths.ProfilesFile()
	if err != nil {
		return nil, "", clierrors.ConfigFailed("resolve profiles file", err)
	}

	profiles, err := profile.Load(path)
	if err != nil {
		return nil, "", clierrors.ConfigFailed("load profiles", err)
	}

	return profiles, path, nil
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		Long: `List every shell profile with its shell binary and how many extra
prompt patterns it carries.`,
		Example: `  convocli profile list
  convocli profile list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			profiles, _, err := loadProfiles()
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(profiles.Profiles)
			}

			names := profiles.Names()
			if len(names) == 0 {
				out.Muted("No profiles configured.")
				out.Muted("Create one with 'convocli profile set <name> --shell /bin/zsh'")

				return nil
			}

			for _, name := range names {
				p, _ := profiles.Get(name)
				out.Print("%s  shell=%s  patterns=%d\n", name, p.Shell, len(p.PromptPatterns))
			}

			return nil
		},
	}
}

func newProfileSetCmd() *cobra.Command {
	var (
		shell          string
		patterns       []string
		quietTimeoutMS int
	)

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or replace a profile",
		Long: `Create or replace a shell profile. Prompt patterns are validated as
regular expressions before the profile is saved.`,
		Example: `  convocli profile set zsh-dev --shell /bin/zsh --pattern '^❯ $'
  convocli profile set slow-box --shell /bin/bash --quiet-timeout-ms 5000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			name := args[0]

			profiles, path, err := loadProfiles()
			if err != nil {
				return err
			}

			p := profile.Profile{
				Shell:          shell,
				PromptPatterns: patterns,
				QuietTimeoutMS: quietTimeoutMS,
			}

			if err := profiles.Set(name, p); err != nil {
				return &clierrors.CLIError{
					Message: "Invalid profile: " + err.Error(),
					Hint:    "A profile needs --shell and valid --pattern expressions",
					Code:    clierrors.ExitUsage,
				}
			}

			if err := profiles.Save(path); err != nil {
				return clierrors.ConfigFailed("save profiles", err)
			}

			out.Success("Profile %q saved", name)

			return nil
		},
	}

	cmd.Flags().StringVar(&shell, "shell", "", "Shell binary for this profile (required)")
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "Extra prompt pattern (repeatable)")
	cmd.Flags().IntVar(&quietTimeoutMS, "quiet-timeout-ms", 0, "Quiet timeout override in milliseconds")

	return cmd
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Long: `Remove one shell profile from the profiles file. Sessions already
running with this profile are unaffected.`,
		Example: `  convocli profile delete zsh-dev`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			name := args[0]

			profiles, path, err := loadProfiles()
			if err != nil {
				return err
			}

			if !profiles.Delete(name) {
				return clierrors.ProfileNotFound(name)
			}

			if err := profiles.Save(path); err != nil {
				return clierrors.ConfigFailed("save profiles", err)
			}

			out.Success("Profile %q deleted", name)

			return nil
		},
	}
}
