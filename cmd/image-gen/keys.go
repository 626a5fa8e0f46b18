package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/keys"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys stored in the OS keyring",
		Long: `Manage API keys stored in the OS keyring.

Environment variables (OPENROUTER_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY)
take precedence over stored keys.`,
		Args: unknownCommand,
		RunE: showHelp,
	}
	cmd.AddCommand(newKeysSetCmd(app), newKeysListCmd(app), newKeysDeleteCmd(app))
	return cmd
}

func newKeysSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a key (read from a hidden prompt or stdin)",
		Args:  usage(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := keys.Lookup(args[0])
			if err != nil {
				return apperr.New(apperr.KindValidation, "keys set", err)
			}
			key, err := app.ReadSecret()
			if err != nil {
				return err
			}
			if err := app.Keys.Set(p.Name, key); err != nil {
				if errors.Is(err, keys.ErrEmptyKey) {
					return apperr.New(apperr.KindValidation, "keys set", err)
				}
				return apperr.New(apperr.KindConfiguration, "keys set", err)
			}
			fmt.Fprintf(app.Out, "Stored %s key %s in the OS keyring.\n", p.Name, keys.MaskKey(strings.TrimSpace(key)))
			return nil
		},
	}
}

func newKeysListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show where each provider's key comes from",
		Args:  usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(app.Out, "%-12s  %-20s  %s\n", "Provider", "Env var", "Source")
			fmt.Fprintln(app.Out, strings.Repeat("-", 60))

			resolver := keys.NewResolver(app.Keys).WithGetenv(app.GetEnv)
			for _, p := range keys.Providers {
				status := "not set"
				if key, source, err := resolver.Resolve(p.Name); err == nil {
					status = fmt.Sprintf("%s (%s)", source, keys.MaskKey(key))
				}
				fmt.Fprintf(app.Out, "%-12s  %-20s  %s\n", p.Name, p.EnvVar, status)
			}
			return nil
		},
	}
}

func newKeysDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored key",
		Args:  usage(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := keys.Lookup(args[0])
			if err != nil {
				return apperr.New(apperr.KindValidation, "keys delete", err)
			}
			if err := app.Keys.Delete(p.Name); err != nil {
				if errors.Is(err, keys.ErrNotFound) {
					fmt.Fprintf(app.Out, "No %s key stored.\n", p.Name)
					return nil
				}
				return apperr.New(apperr.KindConfiguration, "keys delete", err)
			}
			fmt.Fprintf(app.Out, "Deleted %s key.\n", p.Name)
			return nil
		},
	}
}
