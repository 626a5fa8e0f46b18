package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/image-gen/pkg/models"
)

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available models",
		Args:  usage(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(app.Out, "%-16s  %-38s  %-7s  %s\n", "Alias", "API id", "Family", "Traits")
			fmt.Fprintln(app.Out, strings.Repeat("-", 80))
			for _, m := range app.Registry.All() {
				traits := m.Traits()
				if m.Alias == models.DefaultModel {
					traits = append([]string{"default"}, traits...)
				}
				fmt.Fprintf(app.Out, "%-16s  %-38s  %-7s  %s\n", m.Alias, m.ID, m.Family, strings.Join(traits, ", "))
			}
			return nil
		},
	}
}
