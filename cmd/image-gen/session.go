package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/session"
)

const promptPreviewLen = 50

func (app *App) sessionManager() *session.Manager {
	mgr := session.NewManager(session.NewStoreWithPath(app.cfg.SessionFile), app.cfg.OutputDir)
	if err := mgr.Load(); err != nil {
		app.warn("%v (starting a new session)", err)
	}
	return mgr
}

func newSetDirCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-dir <path>",
		Short: "Set the output directory for this project",
		Args:  usage(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			mgr := app.sessionManager()
			dir, err := mgr.SetOutputDir(args[0])
			if err != nil {
				return apperr.New(apperr.KindConfiguration, "set-dir", err)
			}
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				return apperr.Configuration("%s exists and is not a directory", dir)
			}
			if err := mgr.Save(); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			fmt.Fprintf(app.Out, "Output directory set to: %s\n", dir)
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show the session for this project",
		Args:    usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			mgr := app.sessionManager()
			rec := mgr.Record()

			fmt.Fprintf(app.Out, "Session file:   %s\n", mgr.Store().Path())
			if !mgr.Store().Exists() {
				fmt.Fprintln(app.Out, "No session yet. Run 'image-gen generate <prompt>' to start one.")
				return nil
			}

			fmt.Fprintf(app.Out, "Current image:  %s\n", orNone(rec.CurrentImage))
			fmt.Fprintf(app.Out, "Output dir:     %s\n", orNone(rec.OutputDir))
			fmt.Fprintf(app.Out, "History:        %d generation(s)\n", len(rec.History))

			if last := rec.Last(); last != nil {
				fmt.Fprintf(app.Out, "Last model:     %s\n", last.Model)
				fmt.Fprintf(app.Out, "Last prompt:    %s\n", preview(last.Prompt, promptPreviewLen))
			}
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generations in this project",
		Args:  usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if limit < 0 {
				return apperr.Validation("--limit cannot be negative")
			}
			entries := app.sessionManager().Record().Recent(limit)
			if len(entries) == 0 {
				fmt.Fprintln(app.Out, "No generations recorded yet.")
				return nil
			}

			for _, e := range entries {
				ts := "-"
				if !e.Timestamp.IsZero() {
					ts = e.Timestamp.Local().Format(time.DateTime)
				}
				mode := e.Mode
				if mode == "" {
					mode = "generate"
				}
				fmt.Fprintf(app.Out, "%s  %-8s  %-16s  %s\n", ts, mode, e.Model, preview(e.Prompt, promptPreviewLen))
				fmt.Fprintf(app.Out, "    -> %s\n", e.Output)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries to show (0 for all)")
	return cmd
}

func newClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "clear",
		Aliases: []string{"c"},
		Short:   "Forget the current image, output directory and history",
		Args:    usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			store := session.NewStoreWithPath(app.cfg.SessionFile)
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(app.Out, "Session cleared.")
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// preview shortens s to n runes on a single line.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
