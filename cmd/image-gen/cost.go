package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/config"
	"github.com/manash/image-gen/internal/cost"
	"github.com/manash/image-gen/internal/ledger"
)

var costPeriods = []string{"total", "today", "week", "month", "provider", "project", "recent"}

// recentLimit is how many ledger entries "cost recent" lists.
const recentLimit = 10

func newCostCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "cost [total|today|week|month|provider|project|recent]",
		Short:     "Show estimated spend recorded in the cost ledger",
		Args:      costPeriodArg,
		ValidArgs: costPeriods,
		RunE: func(cmd *cobra.Command, args []string) error {
			period := "total"
			if len(args) > 0 {
				period = strings.ToLower(args[0])
			}
			return runCost(cmd.Context(), app, period)
		},
	}
	cmd.AddCommand(newPricesCmd(app), newSetPriceCmd(app))
	return cmd
}

func costPeriodArg(_ *cobra.Command, args []string) error {
	if len(args) > 1 || (len(args) == 1 && !slices.Contains(costPeriods, strings.ToLower(args[0]))) {
		return apperr.Validation("unknown cost period %q (want one of %s)", strings.Join(args, " "), strings.Join(costPeriods, ", "))
	}
	return nil
}

func runCost(ctx context.Context, app *App, period string) error {
	if app.OpenLedger == nil {
		return apperr.Configuration("cost ledger is disabled")
	}
	store, err := app.OpenLedger(app.cfg.LedgerPath)
	if err != nil {
		return apperr.New(apperr.KindConfiguration, "cost", err)
	}
	defer store.Close()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.Add(24 * time.Hour)

	switch period {
	case "today":
		return showRange(ctx, app, store, today, tomorrow, "Today's cost", "today")
	case "week":
		return showRange(ctx, app, store, today.Add(-6*24*time.Hour), tomorrow, "Last 7 days cost", "in the last 7 days")
	case "month":
		return showRange(ctx, app, store, today.Add(-29*24*time.Hour), tomorrow, "Last 30 days cost", "in the last 30 days")
	case "provider":
		return showByProvider(ctx, app, store)
	case "recent":
		return showRecent(ctx, app, store)
	case "project":
		summary, err := store.ProjectCost(ctx, filepath.Dir(app.cfg.SessionFile))
		if err != nil {
			return err
		}
		return printSummary(app, summary, "Project cost", "for this project")
	default:
		summary, err := store.TotalCost(ctx)
		if err != nil {
			return err
		}
		return printSummary(app, summary, "Total cost", "yet")
	}
}

func showRange(ctx context.Context, app *App, store *ledger.Store, start, end time.Time, label, empty string) error {
	summary, err := store.CostByDateRange(ctx, start, end)
	if err != nil {
		return err
	}
	return printSummary(app, summary, label, empty)
}

func printSummary(app *App, summary *ledger.Summary, label, empty string) error {
	if summary.EntryCount == 0 {
		fmt.Fprintf(app.Out, "No costs recorded %s.\n", empty)
		return nil
	}
	fmt.Fprintf(app.Out, "%s: $%.4f (%d image(s))\n", label, summary.TotalCost, summary.ImageCount)
	return nil
}

func showByProvider(ctx context.Context, app *App, store *ledger.Store) error {
	summaries, err := store.CostByProvider(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(app.Out, "No costs recorded yet.")
		return nil
	}

	fmt.Fprintf(app.Out, "%-12s  %-8s  %s\n", "Provider", "Images", "Cost")
	fmt.Fprintln(app.Out, strings.Repeat("-", 35))

	var totalCost float64
	var totalImages int
	for _, ps := range summaries {
		fmt.Fprintf(app.Out, "%-12s  %-8d  $%.4f\n", ps.Provider, ps.ImageCount, ps.TotalCost)
		totalCost += ps.TotalCost
		totalImages += ps.ImageCount
	}

	fmt.Fprintln(app.Out, strings.Repeat("-", 35))
	fmt.Fprintf(app.Out, "%-12s  %-8d  $%.4f\n", "Total", totalImages, totalCost)
	return nil
}

func showRecent(ctx context.Context, app *App, store *ledger.Store) error {
	entries, err := store.Recent(ctx, recentLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.Out, "No costs recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(app.Out, "%s  %-16s  $%.4f  %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"), e.Model, e.Cost, preview(e.Prompt, 50))
	}
	return nil
}

func overridesPath() (string, error) {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return "", apperr.New(apperr.KindConfiguration, "pricing", err)
	}
	return filepath.Join(dir, cost.OverridesFile), nil
}

func newPricesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show per-image prices used for estimates",
		Args:  usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := overridesPath()
			if err != nil {
				return err
			}
			overrides, err := cost.LoadOverrides(path)
			if err != nil {
				return err
			}

			fmt.Fprintf(app.Out, "%-38s  %-18s  %s\n", "Model", "Tier", "Price")
			fmt.Fprintln(app.Out, strings.Repeat("-", 70))
			for _, p := range cost.BuiltinPrices() {
				price, mark := p.PerImage, ""
				if v, ok := overrides.Get(p.Model, p.Tier); ok {
					price, mark = v, " *"
				}
				fmt.Fprintf(app.Out, "%-38s  %-18s  $%.4f%s\n", p.Model, p.Tier, price, mark)
			}
			if overrides != nil {
				fmt.Fprintf(app.Out, "\n* local override from %s\n", path)
			}
			return nil
		},
	}
}

func newSetPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-price <model> <tier> <usd>",
		Short: "Record a local per-image price (tier: quality-WxH for OpenAI, 1K/2K/4K for Gemini)",
		Args:  usage(cobra.ExactArgs(3)),
		RunE: func(_ *cobra.Command, args []string) error {
			model, err := app.Registry.Resolve(args[0])
			if err != nil {
				return apperr.New(apperr.KindValidation, "set-price", err)
			}
			price, err := strconv.ParseFloat(strings.TrimPrefix(args[2], "$"), 64)
			if err != nil || price < 0 {
				return apperr.Validation("invalid price %q", args[2])
			}

			path, err := overridesPath()
			if err != nil {
				return err
			}
			tier := args[1]
			if !strings.Contains(tier, "x") {
				tier = strings.ToUpper(tier)
			}
			if err := cost.SetPrice(path, model.ID, tier, price); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Price for %s %s set to $%.4f\n", model.ID, tier, price)
			return nil
		},
	}
}
